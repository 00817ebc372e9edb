package dispatch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "shutdownsched/pkg/logx"
)

const DefaultTimeout = 30 * time.Second

// waitDelay bounds how long Run waits for output pipes after the process is
// killed; a forked child of at or crontab may keep them open.
const waitDelay = 2 * time.Second

// Command is one native scheduler invocation.
type Command struct {
	Name  string
	Args  []string
	Stdin string
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes native scheduler commands. Failures are *DispatchError,
// with the Result still populated when the process ran.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec, a per-call timeout and a rate limit.
type ExecRunner struct {
	timeout time.Duration
	limiter *rate.Limiter
	log     logx.Logger
}

// NewExecRunner returns a runner. timeout <= 0 uses DefaultTimeout,
// ratePerSec <= 0 disables rate limiting.
func NewExecRunner(timeout time.Duration, ratePerSec int, log logx.Logger) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &ExecRunner{timeout: timeout, log: log}
	if ratePerSec > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return r
}

func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	op := cmd.String()
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return Result{}, &DispatchError{Kind: KindTimeout, Op: op, Err: err}
		}
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	c := exec.CommandContext(cctx, cmd.Name, cmd.Args...)
	c.WaitDelay = waitDelay
	// Output of at/atq/crontab is parsed; keep it in the C locale.
	c.Env = append(os.Environ(), "LC_ALL=C")
	if cmd.Stdin != "" {
		c.Stdin = strings.NewReader(cmd.Stdin)
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if c.ProcessState != nil {
		res.ExitCode = c.ProcessState.ExitCode()
	}
	r.log.Debug("native command",
		logx.String("cmd", op),
		logx.Int("exit", res.ExitCode),
		logx.Duration("took", time.Since(start)),
	)
	if err == nil {
		return res, nil
	}
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return res, &DispatchError{Kind: KindTimeout, Op: op, Detail: "no answer within " + r.timeout.String(), Err: err}
	}
	return res, classify(op, res.Stderr, err)
}

var permissionHints = []string{"permission denied", "do not have permission", "not allowed", "not authorized", "operation not permitted", "access is denied"}

var invalidTimeHints = []string{"garbled time", "in the past", "bad time", "invalid time"}

// classify maps a failed command to a DispatchError kind.
func classify(op, stderr string, err error) *DispatchError {
	detail := lastLine(stderr)
	if errors.Is(err, exec.ErrNotFound) {
		return &DispatchError{Kind: KindUnsupported, Op: op, Detail: "command not found", Err: err}
	}
	if errors.Is(err, os.ErrPermission) {
		return &DispatchError{Kind: KindPermissionDenied, Op: op, Detail: detail, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &DispatchError{Kind: KindTimeout, Op: op, Detail: detail, Err: err}
	}
	low := strings.ToLower(stderr)
	for _, h := range permissionHints {
		if strings.Contains(low, h) {
			return &DispatchError{Kind: KindPermissionDenied, Op: op, Detail: detail, Err: err}
		}
	}
	for _, h := range invalidTimeHints {
		if strings.Contains(low, h) {
			return &DispatchError{Kind: KindInvalidTime, Op: op, Detail: detail, Err: err}
		}
	}
	return &DispatchError{Kind: KindFailed, Op: op, Detail: detail, Err: err}
}

// lastLine keeps the final stderr line; at(1) prints a shell warning first.
func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
