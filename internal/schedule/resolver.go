package schedule

import (
	"fmt"
	"time"

	"shutdownsched/internal/task"
)

// Delay is a relative trigger measured from the call instant.
type Delay struct {
	Days    int `json:"days,omitempty"`
	Hours   int `json:"hours,omitempty"`
	Minutes int `json:"minutes,omitempty"`
}

func (d Delay) IsZero() bool { return d.Days == 0 && d.Hours == 0 && d.Minutes == 0 }

func (d Delay) Validate() error {
	if d.Days < 0 || d.Hours < 0 || d.Minutes < 0 {
		return &task.ValidationError{Field: "delay", Reason: "days, hours and minutes must be >= 0"}
	}
	return nil
}

// Trigger is either a relative Delay or an absolute At. At wins when set.
type Trigger struct {
	Delay Delay
	At    time.Time
}

func (t Trigger) Absolute() bool { return !t.At.IsZero() }

// Candidate returns the instant the trigger denotes for the given "now".
//
// Days are added on the calendar (same wall-clock time N dates later), hours
// and minutes as elapsed time. A "+1d" delay across a DST change therefore
// keeps the time of day instead of drifting by an hour.
func Candidate(trig Trigger, now time.Time) time.Time {
	if trig.Absolute() {
		return trig.At.In(now.Location())
	}
	d := trig.Delay
	c := time.Date(now.Year(), now.Month(), now.Day()+d.Days,
		now.Hour(), now.Minute(), now.Second(), now.Nanosecond(), now.Location())
	return c.Add(time.Duration(d.Hours)*time.Hour + time.Duration(d.Minutes)*time.Minute)
}

// Resolve computes the timestamp of the first occurrence of a schedule.
//
//   - once:   the candidate itself (the caller decides whether a past value is acceptable)
//   - daily:  the candidate; an absolute candidate already in the past rolls to the next day
//   - weekly: the first day in [candidate, candidate+7d) whose weekday is in days,
//     keeping the candidate's time of day; an absolute candidate in the past rolls forward
//
// Resolve is pure: the same inputs always produce the same output.
func Resolve(kind task.ScheduleType, days task.DaySet, trig Trigger, now time.Time) (time.Time, error) {
	if err := trig.Delay.Validate(); err != nil {
		return time.Time{}, err
	}
	c := Candidate(trig, now)

	switch kind {
	case task.Once:
		return c, nil
	case task.Daily:
		if c.Before(now) {
			return Next(kind, days, c, now)
		}
		return c, nil
	case task.Weekly:
		if days.Empty() {
			return time.Time{}, &task.ValidationError{Field: "daysOfWeek", Reason: "weekly schedule needs at least one day"}
		}
		at, ok := scanWeek(c, days)
		if !ok {
			// unreachable with a non-empty set
			return time.Time{}, fmt.Errorf("no matching weekday in %s", days)
		}
		if at.Before(now) {
			return Next(kind, days, c, now)
		}
		return at, nil
	default:
		return time.Time{}, &task.ValidationError{Field: "scheduleType", Reason: fmt.Sprintf("unknown schedule type %q", kind)}
	}
}

// Next returns the first occurrence strictly after "after" of a recurring
// schedule whose time of day is taken from anchor.
//
// A weekday that matches but whose time of day has already passed rolls over
// to the following week.
func Next(kind task.ScheduleType, days task.DaySet, anchor, after time.Time) (time.Time, error) {
	switch kind {
	case task.Daily:
	case task.Weekly:
		if days.Empty() {
			return time.Time{}, &task.ValidationError{Field: "daysOfWeek", Reason: "weekly schedule needs at least one day"}
		}
	default:
		return time.Time{}, fmt.Errorf("schedule type %q has no next occurrence", kind)
	}

	loc := after.Location()
	a := anchor.In(loc)
	// Day 0 through day 7 inclusive: day 7 covers "same weekday, earlier time".
	for i := 0; i <= 7; i++ {
		t := time.Date(after.Year(), after.Month(), after.Day()+i,
			a.Hour(), a.Minute(), a.Second(), a.Nanosecond(), loc)
		if !t.After(after) {
			continue
		}
		if kind == task.Weekly && !days.Has(t.Weekday()) {
			continue
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("no occurrence within a week for %s", days)
}

func scanWeek(c time.Time, days task.DaySet) (time.Time, bool) {
	for i := 0; i < 7; i++ {
		t := time.Date(c.Year(), c.Month(), c.Day()+i,
			c.Hour(), c.Minute(), c.Second(), c.Nanosecond(), c.Location())
		if days.Has(t.Weekday()) {
			return t, true
		}
	}
	return time.Time{}, false
}

// AlignMinute rounds t up to the next whole minute. Native schedulers fire
// on minute boundaries; rounding up keeps a job from firing before its delay.
func AlignMinute(t time.Time) time.Time {
	m := t.Truncate(time.Minute)
	if m.Before(t) {
		m = m.Add(time.Minute)
	}
	return m
}
