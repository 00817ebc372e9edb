//go:build windows

package dispatch

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/amidaware/taskmaster"

	"shutdownsched/internal/task"
	logx "shutdownsched/pkg/logx"
)

// TaskFolder holds every task this program registers.
const TaskFolder = `\ShutdownScheduler\`

var weekdayFlags = [7]taskmaster.DayOfWeek{
	taskmaster.Sunday, taskmaster.Monday, taskmaster.Tuesday, taskmaster.Wednesday,
	taskmaster.Thursday, taskmaster.Friday, taskmaster.Saturday,
}

// TaskDefDispatcher registers task definitions with the Windows Task Scheduler.
type TaskDefDispatcher struct {
	log logx.Logger
	// mu keeps COM calls on one goroutine at a time.
	mu sync.Mutex
}

func newTaskDef(log logx.Logger) (Dispatcher, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &TaskDefDispatcher{log: log}, nil
}

func (d *TaskDefDispatcher) Name() string { return BackendTaskDef }

func (d *TaskDefDispatcher) withService(op string, fn func(ts *taskmaster.TaskService) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ts, err := taskmaster.Connect()
	if err != nil {
		return classifyTaskErr(op, err)
	}
	defer ts.Disconnect()
	return fn(&ts)
}

func (d *TaskDefDispatcher) SubmitOnce(ctx context.Context, when time.Time, job Job) (string, error) {
	if err := checkTag(job.TaskName, "taskdef"); err != nil {
		return "", err
	}
	if when.IsZero() || !when.After(time.Now()) {
		return "", newError(KindInvalidTime, "taskdef", "start time %s is not in the future", when.Format(time.RFC3339))
	}
	trig := taskmaster.TimeTrigger{
		TaskTrigger: taskmaster.TaskTrigger{Enabled: true, StartBoundary: when},
	}
	return d.register(job, trig)
}

func (d *TaskDefDispatcher) SubmitRecurring(ctx context.Context, rule Rule, job Job) (string, error) {
	if err := checkTag(job.TaskName, "taskdef"); err != nil {
		return "", err
	}
	if err := rule.validate("taskdef"); err != nil {
		return "", err
	}
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), rule.Hour, rule.Minute, 0, 0, time.Local)
	base := taskmaster.TaskTrigger{Enabled: true, StartBoundary: start}

	var trig taskmaster.Trigger
	if rule.Daily {
		trig = taskmaster.DailyTrigger{TaskTrigger: base, DayInterval: taskmaster.EveryDay}
	} else {
		var days taskmaster.DayOfWeek
		for _, wd := range rule.Days.Days() {
			days |= weekdayFlags[wd]
		}
		trig = taskmaster.WeeklyTrigger{TaskTrigger: base, DaysOfWeek: days, WeekInterval: taskmaster.EveryWeek}
	}
	return d.register(job, trig)
}

func (d *TaskDefDispatcher) register(job Job, trig taskmaster.Trigger) (string, error) {
	payload := Payload("windows", job.Action)
	path := TaskFolder + job.TaskName
	err := d.withService("taskdef create", func(ts *taskmaster.TaskService) error {
		def := ts.NewTaskDefinition()
		def.AddAction(taskmaster.ExecAction{Path: payload[0], Args: strings.Join(payload[1:], " ")})
		def.AddTrigger(trig)
		def.Principal.RunLevel = taskmaster.TASK_RUNLEVEL_HIGHEST
		def.Principal.LogonType = taskmaster.TASK_LOGON_SERVICE_ACCOUNT
		def.Principal.UserID = "SYSTEM"
		def.Settings.AllowDemandStart = true
		def.RegistrationInfo.Description = job.Action.Label() + " scheduled by shutdownsched"

		_, ok, err := ts.CreateTask(path, def, true)
		if err != nil {
			return classifyTaskErr("taskdef create", err)
		}
		if !ok {
			return newError(KindFailed, "taskdef create", "task %s was not registered", path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	d.log.Info("task definition registered", logx.String("task", job.TaskName), logx.String("path", path))
	return makeToken(TokenTaskDef, path), nil
}

func (d *TaskDefDispatcher) Cancel(ctx context.Context, nativeJobID string) error {
	backend, path, ok := SplitToken(nativeJobID)
	if !ok || backend != TokenTaskDef {
		return newError(KindFailed, "taskdef delete", "not a task definition id: %q", nativeJobID)
	}
	return d.withService("taskdef delete", func(ts *taskmaster.TaskService) error {
		if err := ts.DeleteTask(path); err != nil {
			if isNotFound(err) {
				return nil
			}
			return classifyTaskErr("taskdef delete", err)
		}
		return nil
	})
}

func (d *TaskDefDispatcher) ListNative(ctx context.Context, prefix string) ([]NativeJob, error) {
	var out []NativeJob
	err := d.withService("taskdef list", func(ts *taskmaster.TaskService) error {
		tasks, err := ts.GetRegisteredTasks()
		if err != nil {
			return classifyTaskErr("taskdef list", err)
		}
		defer tasks.Release()
		for _, rt := range tasks {
			if !strings.HasPrefix(rt.Path, TaskFolder) || !task.HasPrefix(rt.Name, prefix) {
				continue
			}
			j := NativeJob{
				ID:       makeToken(TokenTaskDef, rt.Path),
				TaskName: rt.Name,
				Backend:  BackendTaskDef,
				Next:     rt.NextRunTime,
			}
			for _, a := range rt.Definition.Actions {
				if ea, ok := a.(taskmaster.ExecAction); ok {
					j.Command = strings.TrimSpace(ea.Path + " " + ea.Args)
					break
				}
			}
			out = append(out, j)
		}
		return nil
	})
	return out, err
}

func isNotFound(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "cannot find") || strings.Contains(s, "not found") || strings.Contains(s, "0x80070002")
}

func classifyTaskErr(op string, err error) error {
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "access is denied") || strings.Contains(s, "0x80070005"):
		return &DispatchError{Kind: KindPermissionDenied, Op: op, Err: err}
	case strings.Contains(s, "0x80041318"):
		return &DispatchError{Kind: KindInvalidTime, Op: op, Err: err}
	default:
		return &DispatchError{Kind: KindFailed, Op: op, Err: err}
	}
}
