package dispatch

import (
	"context"
	"regexp"
	"runtime"
	"strings"
	"time"

	"shutdownsched/internal/task"
	logx "shutdownsched/pkg/logx"
)

// atTimeLayout is the -t argument format ([[CC]YY]MMDDhhmm).
const atTimeLayout = "200601021504"

// atqTimeLayout is the date column printed by atq in the C locale.
const atqTimeLayout = "Mon Jan _2 15:04:05 2006"

var atJobRe = regexp.MustCompile(`(?m)^job\s+(\d+)\s+at\b`)

// AtDispatcher drives the one-shot at(1) queue.
//
// The job script starts with a "# <taskName>" line so jobs can be attributed
// back to tasks with "at -c".
type AtDispatcher struct {
	run  Runner
	goos string
	log  logx.Logger
}

func NewAt(run Runner, log logx.Logger) *AtDispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &AtDispatcher{run: run, goos: runtime.GOOS, log: log}
}

func (a *AtDispatcher) Name() string { return "at" }

func (a *AtDispatcher) SubmitOnce(ctx context.Context, when time.Time, job Job) (string, error) {
	if err := checkTag(job.TaskName, "at"); err != nil {
		return "", err
	}
	if when.IsZero() {
		return "", newError(KindInvalidTime, "at", "no time given")
	}
	script := "# " + job.TaskName + "\n" + PayloadLine(a.goos, job.Action) + "\n"
	res, err := a.run.Run(ctx, Command{
		Name:  "at",
		Args:  []string{"-t", when.In(time.Local).Format(atTimeLayout)},
		Stdin: script,
	})
	if err != nil {
		return "", err
	}
	id, ok := parseAtJobID(res.Stderr + "\n" + res.Stdout)
	if !ok {
		return "", newError(KindFailed, "at", "no job number in output %q", strings.TrimSpace(res.Stderr+res.Stdout))
	}
	a.log.Info("at job queued", logx.String("task", job.TaskName), logx.String("job", id), logx.Time("at", when))
	return makeToken(TokenAt, id), nil
}

func (a *AtDispatcher) SubmitRecurring(ctx context.Context, rule Rule, job Job) (string, error) {
	return "", newError(KindUnsupported, "at", "recurring jobs need the cron backend")
}

func (a *AtDispatcher) Cancel(ctx context.Context, nativeJobID string) error {
	backend, id, ok := SplitToken(nativeJobID)
	if !ok || backend != TokenAt {
		return newError(KindFailed, "atrm", "not an at job id: %q", nativeJobID)
	}
	_, err := a.run.Run(ctx, Command{Name: "atrm", Args: []string{id}})
	if err == nil {
		return nil
	}
	// atrm fails for jobs that already ran; that counts as canceled.
	queued, qerr := a.queue(ctx)
	if qerr != nil {
		return err
	}
	for _, e := range queued {
		if e.id == id {
			return err
		}
	}
	a.log.Debug("at job already gone", logx.String("job", id))
	return nil
}

func (a *AtDispatcher) ListNative(ctx context.Context, prefix string) ([]NativeJob, error) {
	queued, err := a.queue(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]NativeJob, 0, len(queued))
	for _, e := range queued {
		res, err := a.run.Run(ctx, Command{Name: "at", Args: []string{"-c", e.id}})
		if err != nil {
			// The job may have fired between atq and at -c.
			a.log.Debug("at -c failed", logx.String("job", e.id), logx.Err(err))
			continue
		}
		name, cmd, ok := findAtTag(res.Stdout, prefix)
		if !ok {
			continue
		}
		out = append(out, NativeJob{
			ID:       makeToken(TokenAt, e.id),
			TaskName: name,
			Backend:  "at",
			Spec:     e.when,
			Command:  cmd,
			Next:     e.next,
		})
	}
	return out, nil
}

type atEntry struct {
	id   string
	when string
	next time.Time
}

func (a *AtDispatcher) queue(ctx context.Context) ([]atEntry, error) {
	res, err := a.run.Run(ctx, Command{Name: "atq"})
	if err != nil {
		return nil, err
	}
	return parseAtq(res.Stdout), nil
}

func parseAtq(out string) []atEntry {
	var entries []atEntry
	for _, line := range strings.Split(out, "\n") {
		f := strings.Fields(line)
		if len(f) == 0 {
			continue
		}
		e := atEntry{id: f[0]}
		if len(f) >= 6 {
			e.when = strings.Join(f[1:6], " ")
			if t, err := time.ParseInLocation(atqTimeLayout, e.when, time.Local); err == nil {
				e.next = t
			}
		}
		entries = append(entries, e)
	}
	return entries
}

func parseAtJobID(out string) (string, bool) {
	m := atJobRe.FindStringSubmatch(out)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// findAtTag finds the "# <name>" marker in an "at -c" dump and the command after it.
func findAtTag(script, prefix string) (name, cmd string, ok bool) {
	lines := strings.Split(script, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		rest, found := strings.CutPrefix(line, "# ")
		if !found || strings.ContainsAny(rest, " \t") || !task.HasPrefix(rest, prefix) {
			continue
		}
		for _, next := range lines[i+1:] {
			if next = strings.TrimSpace(next); next != "" {
				cmd = next
				break
			}
		}
		return rest, cmd, true
	}
	return "", "", false
}

// checkTag rejects names that cannot be embedded as a single-token tag.
func checkTag(name, op string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, " \t\r\n#") {
		return newError(KindFailed, op, "task name %q cannot be used as a job tag", name)
	}
	return nil
}
