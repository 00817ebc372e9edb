package manager

import (
	"context"
	"fmt"

	"shutdownsched/internal/dispatch"
	"shutdownsched/internal/task"
	logx "shutdownsched/pkg/logx"
)

// Report is the difference between the registry and native state.
type Report struct {
	Checked       int                  `json:"checked"`
	MissingNative []task.ScheduledTask `json:"missingNative"`
	Orphaned      []dispatch.NativeJob `json:"orphaned"`
}

func (r Report) Clean() bool { return len(r.MissingNative) == 0 && len(r.Orphaned) == 0 }

// Reconcile compares registry rows with the native jobs carrying the prefix.
// It only reports; nothing is created or removed.
//
// One-time rows whose time has passed are expected to be gone natively and
// are not reported as missing.
func (m *Manager) Reconcile(ctx context.Context) (Report, error) {
	jobs, err := m.disp.ListNative(ctx, m.prefix)
	if err != nil {
		return Report{}, fmt.Errorf("list native jobs: %w", err)
	}
	rows := m.List()
	nowMs := m.now().UnixMilli()

	byID := make(map[string]struct{}, len(jobs))
	byName := make(map[string]struct{}, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = struct{}{}
		byName[j.TaskName] = struct{}{}
	}
	known := make(map[string]struct{}, len(rows))

	rep := Report{Checked: len(rows), MissingNative: []task.ScheduledTask{}, Orphaned: []dispatch.NativeJob{}}
	for _, t := range rows {
		known[t.Name] = struct{}{}
		_, idOK := byID[t.NativeJobID]
		_, nameOK := byName[t.Name]
		if idOK || nameOK {
			continue
		}
		if !t.Recurring() && (t.Status == task.StatusCompleted || t.Timestamp <= nowMs) {
			continue
		}
		rep.MissingNative = append(rep.MissingNative, t)
	}
	for _, j := range jobs {
		if _, ok := known[j.TaskName]; !ok {
			rep.Orphaned = append(rep.Orphaned, j)
		}
	}
	if !rep.Clean() {
		m.log.Warn("registry and native scheduler disagree",
			logx.Int("missing_native", len(rep.MissingNative)),
			logx.Int("orphaned", len(rep.Orphaned)),
		)
	}
	return rep, nil
}
