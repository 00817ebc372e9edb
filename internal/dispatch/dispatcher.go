package dispatch

import (
	"context"
	"strings"
	"time"

	"shutdownsched/internal/task"
)

// Dispatcher installs, removes and lists native jobs.
type Dispatcher interface {
	// Name is the backend name ("at", "cron", "unix", "taskdef").
	Name() string
	// SubmitOnce installs a one-shot job firing at when. Returns the job token.
	SubmitOnce(ctx context.Context, when time.Time, job Job) (string, error)
	// SubmitRecurring installs a recurring job. Returns the job token.
	SubmitRecurring(ctx context.Context, rule Rule, job Job) (string, error)
	// Cancel removes the job. A job that no longer exists is not an error.
	Cancel(ctx context.Context, nativeJobID string) error
	// ListNative returns the native jobs tagged with prefix.
	ListNative(ctx context.Context, prefix string) ([]NativeJob, error)
}

// Job is what a native entry runs.
type Job struct {
	TaskName string
	Action   task.Action
}

// Rule is a recurring native schedule in local wall-clock time.
type Rule struct {
	Daily  bool
	Days   task.DaySet // weekly only
	Hour   int
	Minute int
}

// RuleFor builds the recurrence for a task whose next occurrence is at.
func RuleFor(kind task.ScheduleType, days task.DaySet, at time.Time) Rule {
	return Rule{
		Daily:  kind == task.Daily,
		Days:   days,
		Hour:   at.Hour(),
		Minute: at.Minute(),
	}
}

func (r Rule) validate(op string) error {
	if r.Hour < 0 || r.Hour > 23 || r.Minute < 0 || r.Minute > 59 {
		return newError(KindInvalidTime, op, "time of day %02d:%02d out of range", r.Hour, r.Minute)
	}
	if !r.Daily && r.Days.Empty() {
		return newError(KindInvalidTime, op, "weekly rule without days")
	}
	return nil
}

// NativeJob is one entry found in the native scheduler.
type NativeJob struct {
	ID       string    `json:"id"`
	TaskName string    `json:"taskName"`
	Backend  string    `json:"backend"`
	Spec     string    `json:"spec"`
	Command  string    `json:"command"`
	Next     time.Time `json:"next,omitempty"`
}

// Token prefixes of native job ids.
const (
	TokenAt      = "at"
	TokenCron    = "cron"
	TokenTaskDef = "task"
)

func makeToken(backend, handle string) string { return backend + ":" + handle }

// SplitToken splits "<backend>:<handle>".
func SplitToken(id string) (backend, handle string, ok bool) {
	backend, handle, ok = strings.Cut(strings.TrimSpace(id), ":")
	if !ok || backend == "" || handle == "" {
		return "", "", false
	}
	return backend, handle, true
}
