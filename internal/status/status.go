// Package status derives display rows (countdowns, tray lines, counters)
// from registry snapshots. Everything here is pure.
package status

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"shutdownsched/internal/task"
)

// Placeholder is the single menu line shown when nothing is scheduled.
const Placeholder = "No scheduled tasks"

// Row is the display projection of one task.
type Row struct {
	TaskName     string            `json:"taskName"`
	Action       task.Action       `json:"action"`
	ScheduleType task.ScheduleType `json:"scheduleType"`
	At           time.Time         `json:"at"`
	Remaining    time.Duration     `json:"remainingNs"`
	Countdown    string            `json:"countdown"`
	Label        string            `json:"label"`
	Relative     string            `json:"relative"`
}

// Project builds one row per task, nearest first. Remaining is clamped at zero.
func Project(tasks []task.ScheduledTask, now time.Time) []Row {
	rows := make([]Row, 0, len(tasks))
	for _, t := range tasks {
		at := t.Time().In(now.Location())
		rem := at.Sub(now)
		if rem < 0 {
			rem = 0
		}
		cd := Countdown(rem)
		rows = append(rows, Row{
			TaskName:     t.Name,
			Action:       t.Action,
			ScheduleType: t.ScheduleType,
			At:           at,
			Remaining:    rem,
			Countdown:    cd,
			Label:        t.Action.Label() + ": " + cd,
			Relative:     humanize.RelTime(at, now, "ago", "from now"),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].At.Before(rows[j].At) })
	return rows
}

// Countdown renders d as "<d>d <h>h <m>m <s>s". Days and hours are left out
// while they are zero; minutes and seconds are always present.
func Countdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	days := secs / 86400
	hours := secs % 86400 / 3600
	mins := secs % 3600 / 60
	s := secs % 60

	var b strings.Builder
	if days > 0 {
		fmt.Fprintf(&b, "%dd ", days)
	}
	if days > 0 || hours > 0 {
		fmt.Fprintf(&b, "%dh ", hours)
	}
	fmt.Fprintf(&b, "%dm %ds", mins, s)
	return b.String()
}

// Title describes the nearest pending row, e.g. "Shutdown in 2h 5m 0s".
// It is empty when there is nothing ahead.
func Title(rows []Row) string {
	for _, r := range rows {
		if r.Remaining > 0 {
			return r.Action.Label() + " in " + r.Countdown
		}
	}
	return ""
}

// MenuLines returns one line per row, or the placeholder.
func MenuLines(rows []Row) []string {
	if len(rows) == 0 {
		return []string{Placeholder}
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Label)
	}
	return out
}

// Summary holds the dashboard counters.
type Summary struct {
	Total     int `json:"total"`
	Upcoming  int `json:"upcoming"`
	Completed int `json:"completed"`
}

// Summarize counts tasks. A one-time task is completed once marked so or once
// its time has passed; recurring tasks are upcoming while their next
// occurrence lies ahead.
func Summarize(tasks []task.ScheduledTask, now time.Time) Summary {
	s := Summary{Total: len(tasks)}
	nowMs := now.UnixMilli()
	for _, t := range tasks {
		switch {
		case t.Status == task.StatusCanceled:
		case t.Status == task.StatusCompleted:
			s.Completed++
		case t.Timestamp > nowMs:
			s.Upcoming++
		case !t.Recurring():
			s.Completed++
		}
	}
	return s
}
