package schedule

import (
	"testing"
	"time"
)

func TestParseDelayVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want Delay
	}{
		{raw: "", want: Delay{}},
		{raw: "30m", want: Delay{Minutes: 30}},
		{raw: "2h", want: Delay{Hours: 2}},
		{raw: "1d", want: Delay{Days: 1}},
		{raw: "1d2h30m", want: Delay{Days: 1, Hours: 2, Minutes: 30}},
		{raw: " 3D 4H ", want: Delay{Days: 3, Hours: 4}},
		{raw: "90m", want: Delay{Minutes: 90}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseDelay(tt.raw)
			if err != nil {
				t.Fatalf("ParseDelay(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParseDelay(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseDelayInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"soon", "2m1h", "-5m", "1.5h"} {
		if _, err := ParseDelay(raw); err == nil {
			t.Fatalf("ParseDelay(%q): expected error", raw)
		}
	}
}

func TestParseAt(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)

	got, err := ParseAt("2024-02-03 04:05", now, time.UTC)
	if err != nil {
		t.Fatalf("ParseAt error: %v", err)
	}
	if want := time.Date(2024, time.February, 3, 4, 5, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("ParseAt = %v, want %v", got, want)
	}

	got, err = ParseAt("22:30", now, time.UTC)
	if err != nil {
		t.Fatalf("ParseAt clock error: %v", err)
	}
	if want := time.Date(2024, time.January, 1, 22, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("ParseAt clock = %v, want %v", got, want)
	}

	if _, err := ParseAt("tomorrow", now, time.UTC); err == nil {
		t.Fatal("expected error for invalid value")
	}
}
