package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// AtLayout is the accepted absolute time format ("2006-01-02 15:04").
const AtLayout = "2006-01-02 15:04"

const clockLayout = "15:04"

var reDelay = regexp.MustCompile(`^(?:(\d+)d)?(?:(\d+)h)?(?:(\d+)m)?$`)

// ParseDelay parses a relative delay such as "30m", "2h", "1d2h30m" or "1d".
// An empty string is the zero delay.
func ParseDelay(raw string) (Delay, error) {
	s := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	if s == "" {
		return Delay{}, nil
	}
	m := reDelay.FindStringSubmatch(s)
	if m == nil {
		return Delay{}, fmt.Errorf("invalid delay %q (use forms like 30m, 2h, 1d2h30m)", raw)
	}
	var d Delay
	var err error
	if d.Days, err = atoiOrZero(m[1]); err != nil {
		return Delay{}, fmt.Errorf("invalid delay %q: %w", raw, err)
	}
	if d.Hours, err = atoiOrZero(m[2]); err != nil {
		return Delay{}, fmt.Errorf("invalid delay %q: %w", raw, err)
	}
	if d.Minutes, err = atoiOrZero(m[3]); err != nil {
		return Delay{}, fmt.Errorf("invalid delay %q: %w", raw, err)
	}
	return d, nil
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// ParseAt parses an absolute trigger in loc. Two forms are accepted:
//   - "2006-01-02 15:04"
//   - "15:04" (today's date in loc, taken from now)
func ParseAt(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("invalid --at value, expected YYYY-MM-DD HH:MM or HH:MM")
	}
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.ParseInLocation(AtLayout, s, loc); err == nil {
		return t, nil
	}
	c, err := time.ParseInLocation(clockLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at value %q, expected YYYY-MM-DD HH:MM or HH:MM", raw)
	}
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day(), c.Hour(), c.Minute(), 0, 0, loc), nil
}
