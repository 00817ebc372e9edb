package status

import (
	"strings"
	"testing"
	"time"

	"shutdownsched/internal/task"
)

func TestCountdown(t *testing.T) {
	t.Parallel()
	tests := []struct {
		d    time.Duration
		want string
	}{
		{d: 0, want: "0m 0s"},
		{d: -5 * time.Second, want: "0m 0s"},
		{d: 59 * time.Second, want: "0m 59s"},
		{d: 5*time.Minute + 999*time.Millisecond, want: "5m 0s"},
		{d: time.Hour, want: "1h 0m 0s"},
		{d: 2*time.Hour + 5*time.Minute, want: "2h 5m 0s"},
		{d: 24 * time.Hour, want: "1d 0h 0m 0s"},
		{d: 3*24*time.Hour + 4*time.Hour + 5*time.Minute + 6*time.Second, want: "3d 4h 5m 6s"},
	}
	for _, tt := range tests {
		if got := Countdown(tt.d); got != tt.want {
			t.Fatalf("Countdown(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestProjectOrdersAndClamps(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	tasks := []task.ScheduledTask{
		{Name: "later", Action: task.ActionReboot, ScheduleType: task.Daily, Timestamp: now.Add(2*time.Hour + 5*time.Minute).UnixMilli()},
		{Name: "past", Action: task.ActionShutdown, ScheduleType: task.Once, Timestamp: now.Add(-time.Minute).UnixMilli()},
		{Name: "soon", Action: task.ActionShutdown, ScheduleType: task.Once, Timestamp: now.Add(90 * time.Second).UnixMilli()},
	}
	rows := Project(tasks, now)
	if len(rows) != 3 {
		t.Fatalf("len = %d", len(rows))
	}
	if rows[0].TaskName != "past" || rows[1].TaskName != "soon" || rows[2].TaskName != "later" {
		t.Fatalf("unexpected order: %s %s %s", rows[0].TaskName, rows[1].TaskName, rows[2].TaskName)
	}
	if rows[0].Remaining != 0 {
		t.Fatalf("past row remaining = %v", rows[0].Remaining)
	}
	if rows[1].Label != "Shutdown: 1m 30s" {
		t.Fatalf("label = %q", rows[1].Label)
	}
	if rows[2].Label != "Restart: 2h 5m 0s" {
		t.Fatalf("label = %q", rows[2].Label)
	}
	if !strings.HasSuffix(rows[2].Relative, "from now") || !strings.HasSuffix(rows[0].Relative, "ago") {
		t.Fatalf("relative = %q / %q", rows[2].Relative, rows[0].Relative)
	}
	if got := Title(rows); got != "Shutdown in 1m 30s" {
		t.Fatalf("Title = %q", got)
	}
}

func TestProjectIsPure(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	tasks := []task.ScheduledTask{{Name: "a", Action: task.ActionShutdown, ScheduleType: task.Once, Timestamp: now.Add(time.Hour).UnixMilli()}}
	a := Project(tasks, now)
	b := Project(tasks, now)
	if a[0] != b[0] {
		t.Fatalf("Project not deterministic: %+v vs %+v", a[0], b[0])
	}
}

func TestMenuLinesPlaceholder(t *testing.T) {
	t.Parallel()
	if got := MenuLines(nil); len(got) != 1 || got[0] != Placeholder {
		t.Fatalf("MenuLines(nil) = %v", got)
	}
	if Title(nil) != "" {
		t.Fatal("Title(nil) should be empty")
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	ahead := now.Add(time.Hour).UnixMilli()
	behind := now.Add(-time.Hour).UnixMilli()
	got := Summarize([]task.ScheduledTask{
		{ScheduleType: task.Once, Timestamp: ahead},
		{ScheduleType: task.Once, Timestamp: behind},
		{ScheduleType: task.Once, Timestamp: behind, Status: task.StatusCompleted},
		{ScheduleType: task.Daily, Timestamp: ahead},
		{ScheduleType: task.Weekly, Timestamp: behind},
	}, now)
	want := Summary{Total: 5, Upcoming: 2, Completed: 2}
	if got != want {
		t.Fatalf("Summarize = %+v, want %+v", got, want)
	}
}
