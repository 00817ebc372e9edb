package dispatch_test

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shutdownsched/internal/dispatch"
	"shutdownsched/internal/dispatch/dispatchtest"
	"shutdownsched/internal/task"
	logx "shutdownsched/pkg/logx"
)

const foreignCrontab = "# m h dom mon dow command\nMAILTO=ops@example.com\n*/5 * * * * /usr/local/bin/backup.sh --quiet # nightly\n0 3 * * * /usr/bin/certbot renew\n"

func TestAtSubmitListCancel(t *testing.T) {
	t.Parallel()
	host := dispatchtest.NewHost()
	at := dispatch.NewAt(host, logx.Nop())
	ctx := context.Background()
	when := time.Now().Add(2 * time.Hour).Truncate(time.Minute)

	id, err := at.SubmitOnce(ctx, when, dispatch.Job{TaskName: "ScheduledTask_0123456789ab", Action: task.ActionShutdown})
	require.NoError(t, err)
	require.Equal(t, "at:1", id)

	calls := host.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, []string{"-t", when.Format("200601021504")}, calls[0].Args)
	require.True(t, strings.HasPrefix(calls[0].Stdin, "# ScheduledTask_0123456789ab\n"))

	jobs, err := at.ListNative(ctx, task.DefaultPrefix)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "ScheduledTask_0123456789ab", jobs[0].TaskName)
	require.Equal(t, "at:1", jobs[0].ID)
	require.Equal(t, dispatch.PayloadLine(runtime.GOOS, task.ActionShutdown), jobs[0].Command)
	require.True(t, jobs[0].Next.Equal(when))

	require.NoError(t, at.Cancel(ctx, id))
	require.Empty(t, host.Queued())
	// Already gone: still success.
	require.NoError(t, at.Cancel(ctx, id))
}

func TestAtListSkipsForeignJobs(t *testing.T) {
	t.Parallel()
	host := dispatchtest.NewHost()
	ctx := context.Background()
	when := time.Now().Add(time.Hour)

	// A job queued by someone else, without our tag.
	_, err := host.Run(ctx, dispatch.Command{Name: "at", Args: []string{"-t", when.Format("200601021504")}, Stdin: "make backup\n"})
	require.NoError(t, err)

	at := dispatch.NewAt(host, logx.Nop())
	_, err = at.SubmitOnce(ctx, when, dispatch.Job{TaskName: "ScheduledTask_aaaaaaaaaaaa", Action: task.ActionReboot})
	require.NoError(t, err)

	jobs, err := at.ListNative(ctx, task.DefaultPrefix)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "at:2", jobs[0].ID)
}

func TestAtCancelFailsWhileJobStillQueued(t *testing.T) {
	t.Parallel()
	host := dispatchtest.NewHost()
	at := dispatch.NewAt(host, logx.Nop())
	ctx := context.Background()

	id, err := at.SubmitOnce(ctx, time.Now().Add(time.Hour), dispatch.Job{TaskName: "ScheduledTask_aaaaaaaaaaaa", Action: task.ActionShutdown})
	require.NoError(t, err)

	host.Fail = func(cmd dispatch.Command) error {
		if cmd.Name == "atrm" {
			return &dispatch.DispatchError{Kind: dispatch.KindPermissionDenied, Op: "atrm", Detail: "Not owner"}
		}
		return nil
	}
	err = at.Cancel(ctx, id)
	require.Error(t, err)
	require.True(t, errors.Is(err, dispatch.ErrPermissionDenied))
	require.Equal(t, []int{1}, host.Queued())
}

func TestAtRejectsRecurring(t *testing.T) {
	t.Parallel()
	at := dispatch.NewAt(dispatchtest.NewHost(), logx.Nop())
	_, err := at.SubmitRecurring(context.Background(), dispatch.Rule{Daily: true}, dispatch.Job{TaskName: "ScheduledTask_x"})
	require.ErrorIs(t, err, dispatch.ErrUnsupported)
}

func TestCronRewritePreservesForeignLines(t *testing.T) {
	t.Parallel()
	host := dispatchtest.NewHost()
	host.Crontab = foreignCrontab
	host.HasCrontab = true
	cron := dispatch.NewCron(host, logx.Nop())
	ctx := context.Background()

	rule := dispatch.Rule{Days: task.NewDaySet(time.Monday, time.Wednesday), Hour: 22, Minute: 30}
	id, err := cron.SubmitRecurring(ctx, rule, dispatch.Job{TaskName: "ScheduledTask_0123456789ab", Action: task.ActionShutdown})
	require.NoError(t, err)
	require.Equal(t, "cron:ScheduledTask_0123456789ab", id)

	want := foreignCrontab + "30 22 * * 1,3 " + dispatch.PayloadLine(runtime.GOOS, task.ActionShutdown) + " # ScheduledTask_0123456789ab\n"
	require.Equal(t, want, host.Crontab)

	require.NoError(t, cron.Cancel(ctx, id))
	require.Equal(t, foreignCrontab, host.Crontab)
}

func TestCronCancelMatchesExactTag(t *testing.T) {
	t.Parallel()
	host := dispatchtest.NewHost()
	cron := dispatch.NewCron(host, logx.Nop())
	ctx := context.Background()

	a, err := cron.SubmitRecurring(ctx, dispatch.Rule{Daily: true, Hour: 1, Minute: 0}, dispatch.Job{TaskName: "ScheduledTask_abc", Action: task.ActionReboot})
	require.NoError(t, err)
	_, err = cron.SubmitRecurring(ctx, dispatch.Rule{Daily: true, Hour: 2, Minute: 0}, dispatch.Job{TaskName: "ScheduledTask_abcd", Action: task.ActionReboot})
	require.NoError(t, err)

	require.NoError(t, cron.Cancel(ctx, a))
	jobs, err := cron.ListNative(ctx, task.DefaultPrefix)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "ScheduledTask_abcd", jobs[0].TaskName)
	require.Equal(t, "0 2 * * *", jobs[0].Spec)
}

func TestCronCancelAbsentIsNoop(t *testing.T) {
	t.Parallel()
	host := dispatchtest.NewHost()
	cron := dispatch.NewCron(host, logx.Nop())

	require.NoError(t, cron.Cancel(context.Background(), "cron:ScheduledTask_missing"))
	for _, c := range host.Calls() {
		require.NotEqual(t, []string{"-"}, c.Args, "crontab must not be rewritten")
	}
	require.False(t, host.HasCrontab)
}

func TestCronListComputesNextRun(t *testing.T) {
	t.Parallel()
	host := dispatchtest.NewHost()
	cron := dispatch.NewCron(host, logx.Nop())
	ctx := context.Background()

	rule := dispatch.Rule{Days: task.NewDaySet(time.Saturday), Hour: 6, Minute: 15}
	_, err := cron.SubmitRecurring(ctx, rule, dispatch.Job{TaskName: "ScheduledTask_aaaaaaaaaaaa", Action: task.ActionReboot})
	require.NoError(t, err)

	jobs, err := cron.ListNative(ctx, task.DefaultPrefix)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	next := jobs[0].Next
	require.True(t, next.After(time.Now()))
	require.Equal(t, time.Saturday, next.Weekday())
	require.Equal(t, 6, next.Hour())
	require.Equal(t, 15, next.Minute())
}

func TestCronRejectsBadRule(t *testing.T) {
	t.Parallel()
	cron := dispatch.NewCron(dispatchtest.NewHost(), logx.Nop())
	ctx := context.Background()
	job := dispatch.Job{TaskName: "ScheduledTask_x", Action: task.ActionShutdown}

	_, err := cron.SubmitRecurring(ctx, dispatch.Rule{Hour: 9}, job)
	require.ErrorIs(t, err, dispatch.ErrInvalidTime)
	_, err = cron.SubmitRecurring(ctx, dispatch.Rule{Daily: true, Hour: 24}, job)
	require.ErrorIs(t, err, dispatch.ErrInvalidTime)
	_, err = cron.SubmitOnce(ctx, time.Now(), job)
	require.ErrorIs(t, err, dispatch.ErrUnsupported)
}

func TestCronReadErrorSurfaces(t *testing.T) {
	t.Parallel()
	host := dispatchtest.NewHost()
	host.Fail = func(cmd dispatch.Command) error {
		return &dispatch.DispatchError{Kind: dispatch.KindPermissionDenied, Op: cmd.String(), Detail: "you are not allowed to use this program"}
	}
	cron := dispatch.NewCron(host, logx.Nop())
	_, err := cron.SubmitRecurring(context.Background(), dispatch.Rule{Daily: true}, dispatch.Job{TaskName: "ScheduledTask_x", Action: task.ActionShutdown})
	require.ErrorIs(t, err, dispatch.ErrPermissionDenied)
}

func TestUnixRoutesByKind(t *testing.T) {
	t.Parallel()
	host := dispatchtest.NewHost()
	d := dispatch.NewUnix(dispatch.NewAt(host, logx.Nop()), dispatch.NewCron(host, logx.Nop()))
	ctx := context.Background()

	onceID, err := d.SubmitOnce(ctx, time.Now().Add(time.Hour), dispatch.Job{TaskName: "ScheduledTask_once00000000", Action: task.ActionShutdown})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(onceID, "at:"))

	dailyID, err := d.SubmitRecurring(ctx, dispatch.Rule{Daily: true, Hour: 23, Minute: 0}, dispatch.Job{TaskName: "ScheduledTask_daily0000000", Action: task.ActionShutdown})
	require.NoError(t, err)
	require.Equal(t, "cron:ScheduledTask_daily0000000", dailyID)

	jobs, err := d.ListNative(ctx, task.DefaultPrefix)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	require.NoError(t, d.Cancel(ctx, onceID))
	require.NoError(t, d.Cancel(ctx, dailyID))
	jobs, err = d.ListNative(ctx, task.DefaultPrefix)
	require.NoError(t, err)
	require.Empty(t, jobs)

	require.ErrorIs(t, d.Cancel(ctx, "task:\\x"), dispatch.ErrUnsupported)
	require.Error(t, d.Cancel(ctx, "garbage"))
}

func TestDetect(t *testing.T) {
	t.Parallel()
	all := func(string) (string, error) { return "/usr/bin/x", nil }
	noAt := func(name string) (string, error) {
		if strings.HasPrefix(name, "at") {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + name, nil
	}

	tests := []struct {
		name    string
		goos    string
		look    func(string) (string, error)
		want    string
		wantErr bool
	}{
		{name: "linux", goos: "linux", look: all, want: dispatch.BackendUnix},
		{name: "darwin", goos: "darwin", look: all, want: dispatch.BackendUnix},
		{name: "windows", goos: "windows", look: noAt, want: dispatch.BackendTaskDef},
		{name: "linux without at", goos: "linux", look: noAt, wantErr: true},
		{name: "plan9", goos: "plan9", look: all, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := dispatch.Detect(tt.goos, tt.look)
			if tt.wantErr {
				if !errors.Is(err, dispatch.ErrUnsupported) {
					t.Fatalf("Detect(%s) err = %v, want unsupported", tt.goos, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Detect(%s) error: %v", tt.goos, err)
			}
			if got != tt.want {
				t.Fatalf("Detect(%s) = %s, want %s", tt.goos, got, tt.want)
			}
		})
	}
}

func TestOpenBackends(t *testing.T) {
	t.Parallel()
	host := dispatchtest.NewHost()
	for _, name := range []string{"unix", "at", "cron"} {
		d, err := dispatch.Open(dispatch.Options{Backend: name, Runner: host})
		require.NoError(t, err)
		require.Equal(t, name, d.Name())
	}
	_, err := dispatch.Open(dispatch.Options{Backend: "launchd", Runner: host})
	require.ErrorIs(t, err, dispatch.ErrUnsupported)
}
