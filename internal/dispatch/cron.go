package dispatch

import (
	"context"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"shutdownsched/internal/task"
	logx "shutdownsched/pkg/logx"
)

// CronDispatcher keeps one line per recurring task in the user's crontab:
//
//	MM HH * * <dow|*> <payload> # <taskName>
//
// Lines without a matching tag are written back untouched.
type CronDispatcher struct {
	run  Runner
	goos string
	log  logx.Logger
	now  func() time.Time

	// mu serializes read-modify-write cycles of the crontab within this process.
	mu sync.Mutex
}

func NewCron(run Runner, log logx.Logger) *CronDispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CronDispatcher{run: run, goos: runtime.GOOS, log: log, now: time.Now}
}

func (c *CronDispatcher) Name() string { return "cron" }

func (c *CronDispatcher) SubmitOnce(ctx context.Context, when time.Time, job Job) (string, error) {
	return "", newError(KindUnsupported, "crontab", "one-shot jobs need the at backend")
}

func (c *CronDispatcher) SubmitRecurring(ctx context.Context, rule Rule, job Job) (string, error) {
	if err := checkTag(job.TaskName, "crontab"); err != nil {
		return "", err
	}
	if err := rule.validate("crontab"); err != nil {
		return "", err
	}
	spec := cronSpec(rule)
	if _, err := cron.ParseStandard(spec); err != nil {
		return "", &DispatchError{Kind: KindInvalidTime, Op: "crontab", Detail: spec, Err: err}
	}
	line := spec + " " + PayloadLine(c.goos, job.Action) + " # " + job.TaskName

	c.mu.Lock()
	defer c.mu.Unlock()

	lines, err := c.read(ctx)
	if err != nil {
		return "", err
	}
	lines, _ = withoutTag(lines, job.TaskName)
	lines = append(lines, line)
	if err := c.write(ctx, lines); err != nil {
		return "", err
	}
	c.log.Info("cron entry installed", logx.String("task", job.TaskName), logx.String("spec", spec))
	return makeToken(TokenCron, job.TaskName), nil
}

func (c *CronDispatcher) Cancel(ctx context.Context, nativeJobID string) error {
	backend, name, ok := SplitToken(nativeJobID)
	if !ok || backend != TokenCron {
		return newError(KindFailed, "crontab", "not a cron job id: %q", nativeJobID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	lines, err := c.read(ctx)
	if err != nil {
		return err
	}
	kept, removed := withoutTag(lines, name)
	if removed == 0 {
		return nil
	}
	if err := c.write(ctx, kept); err != nil {
		return err
	}
	c.log.Info("cron entry removed", logx.String("task", name), logx.Int("lines", removed))
	return nil
}

func (c *CronDispatcher) ListNative(ctx context.Context, prefix string) ([]NativeJob, error) {
	c.mu.Lock()
	lines, err := c.read(ctx)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	now := c.now()
	var out []NativeJob
	for _, line := range lines {
		e, ok := parseCronLine(line)
		if !ok || !task.HasPrefix(e.tag, prefix) {
			continue
		}
		j := NativeJob{
			ID:       makeToken(TokenCron, e.tag),
			TaskName: e.tag,
			Backend:  "cron",
			Spec:     e.spec,
			Command:  e.command,
		}
		if sched, err := cron.ParseStandard(e.spec); err == nil {
			j.Next = sched.Next(now)
		}
		out = append(out, j)
	}
	return out, nil
}

// read returns the current crontab lines. A user without a crontab has none.
func (c *CronDispatcher) read(ctx context.Context) ([]string, error) {
	res, err := c.run.Run(ctx, Command{Name: "crontab", Args: []string{"-l"}})
	if err != nil {
		if strings.Contains(strings.ToLower(res.Stderr), "no crontab") {
			return nil, nil
		}
		return nil, err
	}
	out := strings.TrimSuffix(res.Stdout, "\n")
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

func (c *CronDispatcher) write(ctx context.Context, lines []string) error {
	content := ""
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}
	_, err := c.run.Run(ctx, Command{Name: "crontab", Args: []string{"-"}, Stdin: content})
	return err
}

// cronSpec renders the five standard fields. Cron numbers weekdays like
// time.Weekday (0 = Sunday).
func cronSpec(r Rule) string {
	dow := "*"
	if !r.Daily {
		parts := make([]string, 0, 7)
		for d := time.Sunday; d <= time.Saturday; d++ {
			if r.Days.Has(d) {
				parts = append(parts, strconv.Itoa(int(d)))
			}
		}
		dow = strings.Join(parts, ",")
	}
	return strconv.Itoa(r.Minute) + " " + strconv.Itoa(r.Hour) + " * * " + dow
}

type cronLine struct {
	spec    string
	command string
	tag     string
}

func parseCronLine(line string) (cronLine, bool) {
	t := strings.TrimSpace(line)
	if t == "" || strings.HasPrefix(t, "#") {
		return cronLine{}, false
	}
	i := strings.LastIndex(t, " # ")
	if i < 0 {
		return cronLine{}, false
	}
	tag := strings.TrimSpace(t[i+3:])
	if tag == "" || strings.ContainsAny(tag, " \t") {
		return cronLine{}, false
	}
	f := strings.Fields(t[:i])
	if len(f) < 6 {
		return cronLine{}, false
	}
	return cronLine{
		spec:    strings.Join(f[:5], " "),
		command: strings.Join(f[5:], " "),
		tag:     tag,
	}, true
}

// withoutTag drops the lines tagged exactly with name.
func withoutTag(lines []string, name string) ([]string, int) {
	kept := make([]string, 0, len(lines))
	removed := 0
	for _, line := range lines {
		if e, ok := parseCronLine(line); ok && e.tag == name {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	return kept, removed
}
