package task

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseDaySet(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "mon,wed,fri", want: "mon,wed,fri"},
		{in: "Sunday monday", want: "mon,sun"},
		{in: "sat;sat", want: "sat"},
		{in: "", want: ""},
		{in: "mon,funday", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseDaySet(tc.in)
		if tc.wantErr {
			if err == nil || !IsValidation(err) {
				t.Fatalf("ParseDaySet(%q) err=%v, want validation error", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDaySet(%q): %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Fatalf("ParseDaySet(%q)=%q, want %q", tc.in, got.String(), tc.want)
		}
	}
}

func TestDaySetMembers(t *testing.T) {
	t.Parallel()
	s := NewDaySet(time.Sunday, time.Monday, time.Saturday)
	if s.Len() != 3 || !s.Has(time.Sunday) || s.Has(time.Tuesday) {
		t.Fatalf("unexpected set %s (len %d)", s, s.Len())
	}
	days := s.Days()
	if days[0] != time.Monday || days[len(days)-1] != time.Sunday {
		t.Fatalf("Days not Monday-first: %v", days)
	}
	if !DaySet(0).Empty() || s.Empty() {
		t.Fatal("Empty mismatch")
	}
}

func TestDaySetJSON(t *testing.T) {
	t.Parallel()
	b, err := json.Marshal(NewDaySet(time.Friday, time.Monday))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `["mon","fri"]` {
		t.Fatalf("marshal=%s", b)
	}
	var s DaySet
	if err := json.Unmarshal([]byte(`["Tuesday","thu"]`), &s); err != nil {
		t.Fatal(err)
	}
	if s != NewDaySet(time.Tuesday, time.Thursday) {
		t.Fatalf("unmarshal=%s", s)
	}
	if err := json.Unmarshal([]byte(`["xyz"]`), &s); err == nil {
		t.Fatal("expected error for unknown day")
	}
}

func TestParseAction(t *testing.T) {
	t.Parallel()
	cases := map[string]Action{
		"shutdown": ActionShutdown,
		"Poweroff": ActionShutdown,
		"reboot":   ActionReboot,
		" restart": ActionReboot,
	}
	for in, want := range cases {
		got, err := ParseAction(in)
		if err != nil || got != want {
			t.Fatalf("ParseAction(%q)=%q,%v want %q", in, got, err, want)
		}
	}
	if _, err := ParseAction("hibernate"); !IsValidation(err) {
		t.Fatalf("want validation error, got %v", err)
	}
	if ActionReboot.Label() != "Restart" || ActionShutdown.Label() != "Shutdown" {
		t.Fatal("unexpected labels")
	}
}

func TestParseScheduleType(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"once", "Daily", " weekly "} {
		if _, err := ParseScheduleType(in); err != nil {
			t.Fatalf("ParseScheduleType(%q): %v", in, err)
		}
	}
	if _, err := ParseScheduleType("monthly"); !IsValidation(err) {
		t.Fatalf("want validation error, got %v", err)
	}
	if Once.Recurring() || !Daily.Recurring() || !Weekly.Recurring() {
		t.Fatal("Recurring mismatch")
	}
}

func TestScheduledTaskValidate(t *testing.T) {
	t.Parallel()
	ok := ScheduledTask{Name: "ScheduledTask_0123456789ab", Action: ActionShutdown, ScheduleType: Once}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid row rejected: %v", err)
	}
	bad := []ScheduledTask{
		{Action: ActionShutdown, ScheduleType: Once},
		{Name: "x", Action: "sleep", ScheduleType: Once},
		{Name: "x", Action: ActionReboot, ScheduleType: "hourly"},
		{Name: "x", Action: ActionReboot, ScheduleType: Weekly},
	}
	for i, row := range bad {
		if err := row.Validate(); !IsValidation(err) {
			t.Fatalf("row %d: want validation error, got %v", i, err)
		}
	}
}

func TestRegistryRowLayout(t *testing.T) {
	t.Parallel()
	row := ScheduledTask{
		Name:         "ScheduledTask_0123456789ab",
		Action:       ActionReboot,
		ScheduleType: Weekly,
		DaysOfWeek:   NewDaySet(time.Wednesday),
		Timestamp:    1704146400000,
		NativeJobID:  "cron:ScheduledTask_0123456789ab",
	}
	b, err := json.Marshal(row)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"taskName"`, `"action":"reboot"`, `"scheduleType":"weekly"`, `"daysOfWeek":["wed"]`, `"timestamp":1704146400000`, `"nativeJobId"`} {
		if !strings.Contains(string(b), key) {
			t.Fatalf("%s missing from %s", key, b)
		}
	}
	once, _ := json.Marshal(ScheduledTask{Name: "n", Action: ActionShutdown, ScheduleType: Once, Timestamp: 1})
	if strings.Contains(string(once), "daysOfWeek") {
		t.Fatalf("once row carries daysOfWeek: %s", once)
	}
}

func TestNewName(t *testing.T) {
	t.Parallel()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		n := NewName("")
		if !HasPrefix(n, DefaultPrefix) || len(n) != len(DefaultPrefix)+1+12 {
			t.Fatalf("bad name %q", n)
		}
		if strings.ContainsAny(n, " \t#") {
			t.Fatalf("name %q not usable as a tag", n)
		}
		if seen[n] {
			t.Fatalf("duplicate name %q", n)
		}
		seen[n] = true
	}
	if HasPrefix("ScheduledTaskX_0123", DefaultPrefix) {
		t.Fatal("prefix match must require the separator")
	}
	if n := NewName("Nightly"); !strings.HasPrefix(n, "Nightly_") {
		t.Fatalf("custom prefix ignored: %q", n)
	}
}

func TestPartialFailure(t *testing.T) {
	t.Parallel()
	denied := errors.New("permission denied")
	pf := &PartialFailure{Failures: []CancelFailure{
		{TaskName: "a", NativeJobID: "at:3", Err: denied},
		{TaskName: "b", NativeJobID: "cron:b", Err: errors.New("crontab busy")},
	}}
	if !errors.Is(pf, denied) {
		t.Fatal("PartialFailure must unwrap to its cancel errors")
	}
	msg := pf.Error()
	if !strings.HasPrefix(msg, "2 native cancel(s) failed") || !strings.Contains(msg, "a (at:3): permission denied") {
		t.Fatalf("unexpected message %q", msg)
	}
	var target *PartialFailure
	if !errors.As(error(pf), &target) || len(target.Failures) != 2 {
		t.Fatal("errors.As failed")
	}
}
