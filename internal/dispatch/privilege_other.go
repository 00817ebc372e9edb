//go:build !unix

package dispatch

// Privileged always reports true where the task definition itself carries the principal.
func Privileged() bool { return true }
