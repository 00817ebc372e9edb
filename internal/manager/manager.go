package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"shutdownsched/internal/dispatch"
	"shutdownsched/internal/schedule"
	"shutdownsched/internal/storage"
	"shutdownsched/internal/task"
	logx "shutdownsched/pkg/logx"
)

// Description is a create request.
type Description struct {
	Action       task.Action
	ScheduleType task.ScheduleType
	Days         task.DaySet // weekly only
	Trigger      schedule.Trigger
}

func (d Description) validate() error {
	if !d.Action.Valid() {
		return &task.ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", d.Action)}
	}
	if !d.ScheduleType.Valid() {
		return &task.ValidationError{Field: "scheduleType", Reason: fmt.Sprintf("unknown schedule type %q", d.ScheduleType)}
	}
	if d.ScheduleType == task.Weekly && d.Days.Empty() {
		return &task.ValidationError{Field: "daysOfWeek", Reason: "weekly schedule needs at least one day"}
	}
	if err := d.Trigger.Delay.Validate(); err != nil {
		return err
	}
	if d.ScheduleType == task.Once && !d.Trigger.Absolute() && d.Trigger.Delay.IsZero() {
		return &task.ValidationError{Field: "delay", Reason: "one-time task needs a delay or an absolute time"}
	}
	return nil
}

type Manager struct {
	store   storage.Store
	disp    dispatch.Dispatcher
	log     logx.Logger
	now     func() time.Time
	prefix  string
	newName task.NameFunc

	// mu serializes mutations (native command + registry write).
	mu sync.Mutex

	snapMu sync.RWMutex
	tasks  []task.ScheduledTask // replaced, never modified in place
}

// New loads the registry. An unreadable registry is logged and treated as
// empty; the store preserves the bad file on the next write.
func New(ctx context.Context, store storage.Store, disp dispatch.Dispatcher, opts ...Option) (*Manager, error) {
	if store == nil || disp == nil {
		return nil, errors.New("manager: store and dispatcher are required")
	}
	m := &Manager{
		store:   store,
		disp:    disp,
		log:     logx.Nop(),
		now:     time.Now,
		prefix:  task.DefaultPrefix,
		newName: task.NewName,
	}
	for _, o := range opts {
		o(m)
	}

	rows, err := store.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrCorrupt):
		m.log.Warn("task registry unreadable, starting empty", logx.String("path", store.Path()), logx.Err(err))
		rows = []task.ScheduledTask{}
	case err != nil:
		return nil, fmt.Errorf("load registry: %w", err)
	}
	m.publish(rows)
	m.log.Debug("registry loaded", logx.Int("tasks", len(rows)), logx.String("path", store.Path()))
	return m, nil
}

func (m *Manager) Prefix() string { return m.prefix }

// Path is the registry location.
func (m *Manager) Path() string { return m.store.Path() }

// Backend names the native dispatcher in use.
func (m *Manager) Backend() string { return m.disp.Name() }

func (m *Manager) snapshot() []task.ScheduledTask {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.tasks
}

func (m *Manager) publish(rows []task.ScheduledTask) {
	m.snapMu.Lock()
	m.tasks = rows
	m.snapMu.Unlock()
}

// Create resolves the schedule, installs the native job and records the task.
// A failed registry write cancels the freshly installed job.
func (m *Manager) Create(ctx context.Context, d Description) (task.ScheduledTask, error) {
	if err := d.validate(); err != nil {
		return task.ScheduledTask{}, err
	}
	if d.ScheduleType != task.Weekly {
		d.Days = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	// Align before the weekday scan so rounding up cannot carry a weekly run
	// past midnight onto a day outside the set.
	trig := schedule.Trigger{At: schedule.AlignMinute(schedule.Candidate(d.Trigger, now))}
	at, err := schedule.Resolve(d.ScheduleType, d.Days, trig, now)
	if err != nil {
		return task.ScheduledTask{}, err
	}
	if d.ScheduleType == task.Once && !at.After(now) {
		return task.ScheduledTask{}, &task.ValidationError{
			Field:  "timestamp",
			Reason: fmt.Sprintf("%s is not in the future", at.Format(schedule.AtLayout)),
		}
	}

	cur, err := m.latest(ctx)
	if err != nil {
		return task.ScheduledTask{}, err
	}

	name := m.newName(m.prefix)
	job := dispatch.Job{TaskName: name, Action: d.Action}
	var id string
	if d.ScheduleType == task.Once {
		id, err = m.disp.SubmitOnce(ctx, at, job)
	} else {
		id, err = m.disp.SubmitRecurring(ctx, dispatch.RuleFor(d.ScheduleType, d.Days, at), job)
	}
	if err != nil {
		return task.ScheduledTask{}, fmt.Errorf("schedule %s: %w", name, err)
	}

	t := task.ScheduledTask{
		Name:         name,
		Action:       d.Action,
		ScheduleType: d.ScheduleType,
		DaysOfWeek:   d.Days,
		Timestamp:    at.UnixMilli(),
		NativeJobID:  id,
		Status:       task.StatusPending,
		CreatedAt:    now.UnixMilli(),
	}
	next := make([]task.ScheduledTask, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, t)

	if err := m.store.ReplaceAll(ctx, next); err != nil {
		m.compensate(ctx, name, id)
		return task.ScheduledTask{}, fmt.Errorf("save task %s: %w", name, err)
	}
	m.publish(next)
	m.log.Info("task created",
		logx.String("task", name),
		logx.String("action", string(d.Action)),
		logx.String("type", string(d.ScheduleType)),
		logx.Time("at", at),
		logx.String("native", id),
	)
	return t, nil
}

// latest re-reads the registry so a mutation applies to rows other processes
// wrote since the last load, and publishes them. An unreadable registry falls
// back to the current snapshot. Callers hold m.mu.
func (m *Manager) latest(ctx context.Context) ([]task.ScheduledTask, error) {
	rows, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrCorrupt):
		m.log.Warn("task registry unreadable, using last loaded rows", logx.String("path", m.store.Path()), logx.Err(err))
		return m.snapshot(), nil
	case err != nil:
		return nil, fmt.Errorf("load registry: %w", err)
	}
	m.publish(rows)
	return rows, nil
}

func (m *Manager) compensate(ctx context.Context, name, id string) {
	if err := m.disp.Cancel(context.WithoutCancel(ctx), id); err != nil {
		m.log.Error("native job left behind after failed save; remove it manually",
			logx.String("task", name), logx.String("native", id), logx.Err(err))
		return
	}
	m.log.Warn("native job withdrawn after failed save", logx.String("task", name), logx.String("native", id))
}

// Delete cancels the task's native job and removes the row. An unknown name
// returns task.ErrNotFound without touching the registry. When the cancel
// fails the row is kept.
func (m *Manager) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, err := m.latest(ctx)
	if err != nil {
		return err
	}
	idx := indexOf(cur, name)
	if idx < 0 {
		return fmt.Errorf("%w: %s", task.ErrNotFound, name)
	}
	t := cur[idx]
	if t.NativeJobID != "" {
		if err := m.disp.Cancel(ctx, t.NativeJobID); err != nil {
			return fmt.Errorf("cancel %s (%s): %w", name, t.NativeJobID, err)
		}
	}

	next := make([]task.ScheduledTask, 0, len(cur)-1)
	next = append(next, cur[:idx]...)
	next = append(next, cur[idx+1:]...)
	if err := m.store.ReplaceAll(ctx, next); err != nil {
		m.log.Error("native job canceled but registry not updated",
			logx.String("task", name), logx.String("native", t.NativeJobID), logx.Err(err))
		return fmt.Errorf("save registry: %w", err)
	}
	m.publish(next)
	m.log.Info("task deleted", logx.String("task", name), logx.String("native", t.NativeJobID))
	return nil
}

// DeleteAll cancels every native job and clears the registry even when some
// cancels fail; those are reported as *task.PartialFailure.
func (m *Manager) DeleteAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, err := m.latest(ctx)
	if err != nil {
		return err
	}
	var failures []task.CancelFailure
	for _, t := range cur {
		if t.NativeJobID == "" {
			continue
		}
		if err := m.disp.Cancel(ctx, t.NativeJobID); err != nil {
			m.log.Warn("cancel failed", logx.String("task", t.Name), logx.String("native", t.NativeJobID), logx.Err(err))
			failures = append(failures, task.CancelFailure{TaskName: t.Name, NativeJobID: t.NativeJobID, Err: err})
		}
	}

	empty := []task.ScheduledTask{}
	if err := m.store.ReplaceAll(ctx, empty); err != nil {
		return fmt.Errorf("clear registry: %w", err)
	}
	m.publish(empty)
	m.log.Info("all tasks deleted", logx.Int("tasks", len(cur)), logx.Int("cancel_failures", len(failures)))
	if len(failures) > 0 {
		return &task.PartialFailure{Failures: failures}
	}
	return nil
}

// List returns a copy of the registry ordered by timestamp.
func (m *Manager) List() []task.ScheduledTask {
	cur := m.snapshot()
	out := make([]task.ScheduledTask, len(cur))
	copy(out, cur)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (m *Manager) Get(name string) (task.ScheduledTask, error) {
	cur := m.snapshot()
	if i := indexOf(cur, name); i >= 0 {
		return cur[i], nil
	}
	return task.ScheduledTask{}, fmt.Errorf("%w: %s", task.ErrNotFound, name)
}

// Refresh advances recurring rows whose occurrence has passed and marks
// fired one-time rows completed. It works on a fresh read of the registry and
// returns the number of rows changed.
func (m *Manager) Refresh(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	nowMs := now.UnixMilli()
	cur, err := m.latest(ctx)
	if err != nil {
		return 0, err
	}
	next := make([]task.ScheduledTask, len(cur))
	copy(next, cur)

	changed := 0
	for i := range next {
		t := &next[i]
		if t.Timestamp > nowMs {
			continue
		}
		if t.Recurring() {
			n, err := schedule.Next(t.ScheduleType, t.DaysOfWeek, t.Time().In(now.Location()), now)
			if err != nil {
				m.log.Warn("cannot advance task", logx.String("task", t.Name), logx.Err(err))
				continue
			}
			t.Timestamp = n.UnixMilli()
			changed++
			continue
		}
		if t.Status != task.StatusCompleted {
			t.Status = task.StatusCompleted
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}
	if err := m.store.ReplaceAll(ctx, next); err != nil {
		return 0, fmt.Errorf("save registry: %w", err)
	}
	m.publish(next)
	m.log.Debug("registry refreshed", logx.Int("changed", changed))
	return changed, nil
}

// Reload re-reads the registry after another process changed it. The current
// snapshot is kept when the file cannot be read.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("reload registry: %w", err)
	}
	m.publish(rows)
	return nil
}

// Native lists the native jobs carrying this manager's prefix.
func (m *Manager) Native(ctx context.Context) ([]dispatch.NativeJob, error) {
	return m.disp.ListNative(ctx, m.prefix)
}

func indexOf(rows []task.ScheduledTask, name string) int {
	for i := range rows {
		if rows[i].Name == name {
			return i
		}
	}
	return -1
}
