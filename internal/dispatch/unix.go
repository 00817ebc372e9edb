package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// UnixDispatcher routes one-shot jobs to at and recurring jobs to cron.
type UnixDispatcher struct {
	at   *AtDispatcher
	cron *CronDispatcher
}

func NewUnix(at *AtDispatcher, cron *CronDispatcher) *UnixDispatcher {
	return &UnixDispatcher{at: at, cron: cron}
}

func (u *UnixDispatcher) Name() string { return "unix" }

func (u *UnixDispatcher) SubmitOnce(ctx context.Context, when time.Time, job Job) (string, error) {
	return u.at.SubmitOnce(ctx, when, job)
}

func (u *UnixDispatcher) SubmitRecurring(ctx context.Context, rule Rule, job Job) (string, error) {
	return u.cron.SubmitRecurring(ctx, rule, job)
}

func (u *UnixDispatcher) Cancel(ctx context.Context, nativeJobID string) error {
	backend, _, ok := SplitToken(nativeJobID)
	if !ok {
		return newError(KindFailed, "cancel", "malformed job id %q", nativeJobID)
	}
	switch backend {
	case TokenAt:
		return u.at.Cancel(ctx, nativeJobID)
	case TokenCron:
		return u.cron.Cancel(ctx, nativeJobID)
	default:
		return newError(KindUnsupported, "cancel", "job %q belongs to backend %q", nativeJobID, backend)
	}
}

// ListNative merges both backends. Jobs from a backend that answered are
// returned even when the other one failed.
func (u *UnixDispatcher) ListNative(ctx context.Context, prefix string) ([]NativeJob, error) {
	var errs []error
	atJobs, err := u.at.ListNative(ctx, prefix)
	if err != nil {
		errs = append(errs, fmt.Errorf("at: %w", err))
	}
	cronJobs, err := u.cron.ListNative(ctx, prefix)
	if err != nil {
		errs = append(errs, fmt.Errorf("cron: %w", err))
	}
	out := make([]NativeJob, 0, len(atJobs)+len(cronJobs))
	out = append(out, atJobs...)
	out = append(out, cronJobs...)
	return out, errors.Join(errs...)
}
