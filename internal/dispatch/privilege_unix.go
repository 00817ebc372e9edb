//go:build unix

package dispatch

import "golang.org/x/sys/unix"

// Privileged reports whether jobs queued by this process may power the host off.
// shutdown(8) needs root; jobs queued by other users are accepted but fail later.
func Privileged() bool { return unix.Geteuid() == 0 }
