package dispatchtest

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"shutdownsched/internal/dispatch"
	"shutdownsched/internal/task"
)

// Dispatcher is an in-memory dispatch.Dispatcher with failure injection.
type Dispatcher struct {
	mu sync.Mutex

	jobs   map[string]dispatch.NativeJob
	rules  map[string]dispatch.Rule
	nextID int

	// SubmitErr fails every submit when set.
	SubmitErr error
	// CancelErr fails the cancel of specific job ids.
	CancelErr map[string]error
	// ListErr fails ListNative when set.
	ListErr error

	Submits int
	Cancels []string
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{jobs: map[string]dispatch.NativeJob{}, rules: map[string]dispatch.Rule{}, CancelErr: map[string]error{}, nextID: 1}
}

func (d *Dispatcher) Name() string { return "fake" }

func (d *Dispatcher) SubmitOnce(ctx context.Context, when time.Time, job dispatch.Job) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Submits++
	if d.SubmitErr != nil {
		return "", d.SubmitErr
	}
	id := "fake:" + strconv.Itoa(d.nextID)
	d.nextID++
	d.jobs[id] = dispatch.NativeJob{
		ID:       id,
		TaskName: job.TaskName,
		Backend:  "fake",
		Spec:     when.Format(time.RFC3339),
		Command:  string(job.Action),
		Next:     when,
	}
	return id, nil
}

func (d *Dispatcher) SubmitRecurring(ctx context.Context, rule dispatch.Rule, job dispatch.Job) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Submits++
	if d.SubmitErr != nil {
		return "", d.SubmitErr
	}
	id := "fake:" + strconv.Itoa(d.nextID)
	d.nextID++
	spec := "daily"
	if !rule.Daily {
		spec = "weekly " + rule.Days.String()
	}
	d.rules[id] = rule
	d.jobs[id] = dispatch.NativeJob{
		ID:       id,
		TaskName: job.TaskName,
		Backend:  "fake",
		Spec:     spec,
		Command:  string(job.Action),
	}
	return id, nil
}

// Rule returns the recurrence submitted for a recurring job id.
func (d *Dispatcher) Rule(id string) (dispatch.Rule, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rules[id]
	return r, ok
}

func (d *Dispatcher) Cancel(ctx context.Context, nativeJobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Cancels = append(d.Cancels, nativeJobID)
	if err := d.CancelErr[nativeJobID]; err != nil {
		return err
	}
	delete(d.jobs, nativeJobID)
	return nil
}

func (d *Dispatcher) ListNative(ctx context.Context, prefix string) ([]dispatch.NativeJob, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ListErr != nil {
		return nil, d.ListErr
	}
	out := make([]dispatch.NativeJob, 0, len(d.jobs))
	for _, j := range d.jobs {
		if task.HasPrefix(j.TaskName, prefix) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

// Add installs a job directly, as if created outside the manager.
func (d *Dispatcher) Add(j dispatch.NativeJob) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs[j.ID] = j
}

// Remove drops a job directly, as if deleted outside the manager.
func (d *Dispatcher) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.jobs, id)
}

// Has reports whether id is installed.
func (d *Dispatcher) Has(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.jobs[id]
	return ok
}

// Len is the number of installed jobs.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.jobs)
}
