package dispatch

import (
	"os/exec"
	"runtime"
	"strings"
	"time"

	logx "shutdownsched/pkg/logx"
)

// Backend names accepted by Open.
const (
	BackendAuto    = "auto"
	BackendUnix    = "unix"
	BackendAt      = "at"
	BackendCron    = "cron"
	BackendTaskDef = "taskdef"
)

// Options configures Open. Zero values pick the host defaults.
type Options struct {
	Backend    string
	GOOS       string
	LookPath   func(string) (string, error)
	Runner     Runner
	Timeout    time.Duration
	RatePerSec int
	Log        logx.Logger
}

var unixBinaries = []string{"at", "atq", "atrm", "crontab"}

// Detect picks the backend for goos from the binaries lookPath can find.
func Detect(goos string, lookPath func(string) (string, error)) (string, error) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	switch goos {
	case "windows":
		return BackendTaskDef, nil
	case "linux", "darwin", "freebsd", "openbsd", "netbsd":
		var missing []string
		for _, bin := range unixBinaries {
			if _, err := lookPath(bin); err != nil {
				missing = append(missing, bin)
			}
		}
		if len(missing) > 0 {
			return "", newError(KindUnsupported, "detect", "missing %s (install the at and cron packages)", strings.Join(missing, ", "))
		}
		return BackendUnix, nil
	default:
		return "", newError(KindUnsupported, "detect", "no native scheduler support for %s", goos)
	}
}

// Open builds the dispatcher named by opts.Backend, detecting it when empty or "auto".
func Open(opts Options) (Dispatcher, error) {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" || backend == BackendAuto {
		b, err := Detect(opts.GOOS, opts.LookPath)
		if err != nil {
			return nil, err
		}
		backend = b
	}

	run := opts.Runner
	if run == nil && backend != BackendTaskDef {
		run = NewExecRunner(opts.Timeout, opts.RatePerSec, opts.Log.With(logx.String("comp", "runner")))
	}
	log := opts.Log.With(logx.String("comp", "dispatch"), logx.String("backend", backend))

	switch backend {
	case BackendUnix:
		return NewUnix(NewAt(run, log), NewCron(run, log)), nil
	case BackendAt:
		return NewAt(run, log), nil
	case BackendCron:
		return NewCron(run, log), nil
	case BackendTaskDef:
		return newTaskDef(log)
	default:
		return nil, newError(KindUnsupported, "open", "unknown backend %q", backend)
	}
}
