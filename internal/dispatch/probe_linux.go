//go:build linux

package dispatch

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// probeUnits are the daemons that execute queued at and cron jobs.
var probeUnits = []string{"atd.service", "cron.service", "crond.service", "cronie.service"}

// Probe asks systemd whether the scheduler daemons are running. Units
// that are not installed are reported with LoadState "not-found".
func Probe(ctx context.Context) ([]UnitState, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, &DispatchError{Kind: KindUnsupported, Op: "probe", Detail: "systemd not reachable", Err: err}
	}
	defer conn.Close()

	units, err := conn.ListUnitsByNamesContext(ctx, probeUnits)
	if err != nil {
		return nil, fmt.Errorf("probe: list units: %w", err)
	}
	seen := make(map[string]UnitState, len(units))
	for _, u := range units {
		seen[u.Name] = UnitState{Unit: u.Name, Active: u.ActiveState, SubState: u.SubState, LoadState: u.LoadState}
	}
	out := make([]UnitState, 0, len(probeUnits))
	for _, name := range probeUnits {
		st, ok := seen[name]
		if !ok {
			st = UnitState{Unit: name, Active: "inactive", LoadState: "not-found"}
		}
		out = append(out, st)
	}
	return out, nil
}
