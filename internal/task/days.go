package task

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Weekday tokens as used on disk and on the command line.
var dayTokens = [7]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

var dayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// displayOrder is Monday-first, matching the day picker.
var displayOrder = [7]time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

// DaySet is a set of weekdays stored as a bitmask (bit n = time.Weekday(n)).
type DaySet uint8

func NewDaySet(days ...time.Weekday) DaySet {
	var s DaySet
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

// ParseDaySet parses comma/space separated tokens like "mon,wed fri".
// Full names ("Monday") are accepted too.
func ParseDaySet(raw string) (DaySet, error) {
	var s DaySet
	for _, f := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' || r == ';' }) {
		d, err := ParseWeekday(f)
		if err != nil {
			return 0, err
		}
		s = s.With(d)
	}
	return s, nil
}

func ParseWeekday(tok string) (time.Weekday, error) {
	t := strings.ToLower(strings.TrimSpace(tok))
	for i, d := range dayTokens {
		if t == d || t == strings.ToLower(dayNames[i]) {
			return time.Weekday(i), nil
		}
	}
	return 0, &ValidationError{Field: "daysOfWeek", Reason: fmt.Sprintf("unknown day %q (use mon..sun)", tok)}
}

// Token returns the three-letter token for d.
func Token(d time.Weekday) string { return dayTokens[d%7] }

// FullDayName returns "Monday" for time.Monday, etc.
func FullDayName(d time.Weekday) string { return dayNames[d%7] }

func (s DaySet) With(d time.Weekday) DaySet { return s | 1<<uint(d%7) }

func (s DaySet) Has(d time.Weekday) bool { return s&(1<<uint(d%7)) != 0 }

func (s DaySet) Empty() bool { return s&0x7f == 0 }

func (s DaySet) Len() int {
	n := 0
	for i := 0; i < 7; i++ {
		if s.Has(time.Weekday(i)) {
			n++
		}
	}
	return n
}

// Days returns members Monday-first.
func (s DaySet) Days() []time.Weekday {
	out := make([]time.Weekday, 0, 7)
	for _, d := range displayOrder {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// Tokens returns members as tokens, Monday-first.
func (s DaySet) Tokens() []string {
	days := s.Days()
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, Token(d))
	}
	return out
}

func (s DaySet) String() string { return strings.Join(s.Tokens(), ",") }

func (s DaySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Tokens())
}

func (s *DaySet) UnmarshalJSON(b []byte) error {
	var toks []string
	if err := json.Unmarshal(b, &toks); err != nil {
		return err
	}
	var out DaySet
	for _, t := range toks {
		d, err := ParseWeekday(t)
		if err != nil {
			return err
		}
		out = out.With(d)
	}
	*s = out
	return nil
}
