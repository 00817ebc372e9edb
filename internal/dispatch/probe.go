package dispatch

import "strings"

// UnitState is the systemd state of a scheduler daemon.
type UnitState struct {
	Unit      string `json:"unit"`
	Active    string `json:"active"`
	SubState  string `json:"subState,omitempty"`
	LoadState string `json:"loadState"`
}

func (u UnitState) Running() bool { return u.Active == "active" }

func (u UnitState) Installed() bool { return u.LoadState != "" && u.LoadState != "not-found" }

// MissingDaemons names the scheduler roles (at, cron) with no running unit.
func MissingDaemons(states []UnitState) []string {
	var atOK, cronOK bool
	for _, s := range states {
		if !s.Running() {
			continue
		}
		if strings.HasPrefix(s.Unit, "atd") {
			atOK = true
		} else {
			cronOK = true
		}
	}
	var out []string
	if !atOK {
		out = append(out, "atd")
	}
	if !cronOK {
		out = append(out, "cron")
	}
	return out
}
