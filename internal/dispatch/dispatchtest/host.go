// Package dispatchtest provides in-memory stand-ins for native schedulers.
package dispatchtest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"shutdownsched/internal/dispatch"
)

// Host emulates at, atq, atrm and crontab for one user. It implements
// dispatch.Runner so the real at and cron dispatchers can run against it.
type Host struct {
	mu sync.Mutex

	Crontab    string
	HasCrontab bool

	// Fail, when set, is consulted before every command. A non-nil error is
	// returned as the command's failure.
	Fail func(cmd dispatch.Command) error

	jobs   map[int]atJob
	nextID int
	calls  []dispatch.Command
}

type atJob struct {
	when   time.Time
	script string
}

func NewHost() *Host {
	return &Host{jobs: map[int]atJob{}, nextID: 1}
}

// Calls returns the commands run so far.
func (h *Host) Calls() []dispatch.Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]dispatch.Command(nil), h.calls...)
}

// Queued returns the at job numbers still queued, ascending.
func (h *Host) Queued() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]int, 0, len(h.jobs))
	for id := range h.jobs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Fire drops an at job as if it had run.
func (h *Host) Fire(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.jobs, id)
}

func (h *Host) Run(ctx context.Context, cmd dispatch.Command) (dispatch.Result, error) {
	if err := ctx.Err(); err != nil {
		return dispatch.Result{}, &dispatch.DispatchError{Kind: dispatch.KindTimeout, Op: cmd.String(), Err: err}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, cmd)
	if h.Fail != nil {
		if err := h.Fail(cmd); err != nil {
			return dispatch.Result{ExitCode: 1}, err
		}
	}

	switch cmd.Name {
	case "crontab":
		return h.crontab(cmd)
	case "at":
		if len(cmd.Args) == 2 && cmd.Args[0] == "-c" {
			return h.atCat(cmd)
		}
		return h.atSubmit(cmd)
	case "atq":
		return h.atq(), nil
	case "atrm":
		return h.atrm(cmd)
	default:
		return dispatch.Result{ExitCode: 127}, &dispatch.DispatchError{Kind: dispatch.KindUnsupported, Op: cmd.String(), Detail: "command not found"}
	}
}

func fail(cmd dispatch.Command, stderr string) (dispatch.Result, error) {
	return dispatch.Result{Stderr: stderr, ExitCode: 1}, &dispatch.DispatchError{
		Kind:   dispatch.KindFailed,
		Op:     cmd.String(),
		Detail: strings.TrimSpace(stderr),
	}
}

func (h *Host) crontab(cmd dispatch.Command) (dispatch.Result, error) {
	if len(cmd.Args) != 1 {
		return fail(cmd, "crontab: usage error\n")
	}
	switch cmd.Args[0] {
	case "-l":
		if !h.HasCrontab {
			return fail(cmd, "no crontab for tester\n")
		}
		return dispatch.Result{Stdout: h.Crontab}, nil
	case "-":
		h.Crontab = cmd.Stdin
		h.HasCrontab = true
		return dispatch.Result{}, nil
	default:
		return fail(cmd, "crontab: usage error\n")
	}
}

const atqLayout = "Mon Jan _2 15:04:05 2006"

func (h *Host) atSubmit(cmd dispatch.Command) (dispatch.Result, error) {
	if len(cmd.Args) != 2 || cmd.Args[0] != "-t" {
		return fail(cmd, "at: usage error\n")
	}
	when, err := time.ParseInLocation("200601021504", cmd.Args[1], time.Local)
	if err != nil {
		return fail(cmd, "warning: commands will be executed using /bin/sh\nGarbled time\n")
	}
	id := h.nextID
	h.nextID++
	h.jobs[id] = atJob{when: when, script: cmd.Stdin}
	return dispatch.Result{
		Stderr: fmt.Sprintf("warning: commands will be executed using /bin/sh\njob %d at %s\n", id, when.Format(atqLayout)),
	}, nil
}

func (h *Host) atq() dispatch.Result {
	ids := make([]int, 0, len(h.jobs))
	for id := range h.jobs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "%d\t%s a tester\n", id, h.jobs[id].when.Format(atqLayout))
	}
	return dispatch.Result{Stdout: b.String()}
}

func (h *Host) atrm(cmd dispatch.Command) (dispatch.Result, error) {
	if len(cmd.Args) != 1 {
		return fail(cmd, "atrm: usage error\n")
	}
	id, err := strconv.Atoi(cmd.Args[0])
	if err != nil {
		return fail(cmd, "atrm: invalid job number\n")
	}
	if _, ok := h.jobs[id]; !ok {
		return fail(cmd, fmt.Sprintf("Cannot find jobid %d\n", id))
	}
	delete(h.jobs, id)
	return dispatch.Result{}, nil
}

func (h *Host) atCat(cmd dispatch.Command) (dispatch.Result, error) {
	id, err := strconv.Atoi(cmd.Args[1])
	if err != nil {
		return fail(cmd, "at: invalid job number\n")
	}
	j, ok := h.jobs[id]
	if !ok {
		return fail(cmd, fmt.Sprintf("Cannot find jobid %d\n", id))
	}
	return dispatch.Result{
		Stdout: "#!/bin/sh\n# atrun uid=1000 gid=1000\n# mail tester 0\numask 22\ncd /home/tester || {\n\t exit 1\n}\n" + j.script,
	}, nil
}
