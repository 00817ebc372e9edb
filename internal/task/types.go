package task

import (
	"fmt"
	"strings"
	"time"
)

// Action is the system action a native job executes.
type Action string

const (
	ActionShutdown Action = "shutdown"
	ActionReboot   Action = "reboot"
)

// Label is the user-facing wording for the action.
func (a Action) Label() string {
	switch a {
	case ActionShutdown:
		return "Shutdown"
	case ActionReboot:
		return "Restart"
	default:
		return string(a)
	}
}

func (a Action) Valid() bool { return a == ActionShutdown || a == ActionReboot }

// ParseAction accepts "shutdown", "reboot" and the UI alias "restart".
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shutdown", "poweroff":
		return ActionShutdown, nil
	case "reboot", "restart":
		return ActionReboot, nil
	default:
		return "", &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q (use shutdown or reboot)", s)}
	}
}

// ScheduleType is the recurrence kind of a task.
type ScheduleType string

const (
	Once   ScheduleType = "once"
	Daily  ScheduleType = "daily"
	Weekly ScheduleType = "weekly"
)

func (t ScheduleType) Valid() bool { return t == Once || t == Daily || t == Weekly }

// Recurring reports whether the type is backed by a recurrence entry.
func (t ScheduleType) Recurring() bool { return t == Daily || t == Weekly }

func ParseScheduleType(s string) (ScheduleType, error) {
	t := ScheduleType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", &ValidationError{Field: "scheduleType", Reason: fmt.Sprintf("unknown schedule type %q (use once, daily or weekly)", s)}
	}
	return t, nil
}

// Status is informational; native firing is authoritative.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

// ScheduledTask is one registry row. The JSON layout is the on-disk format.
type ScheduledTask struct {
	Name         string       `json:"taskName"`
	Action       Action       `json:"action"`
	ScheduleType ScheduleType `json:"scheduleType"`
	DaysOfWeek   DaySet       `json:"daysOfWeek,omitempty"`
	Timestamp    int64        `json:"timestamp"` // unix milli
	NativeJobID  string       `json:"nativeJobId,omitempty"`
	Status       Status       `json:"status,omitempty"`
	CreatedAt    int64        `json:"createdAt,omitempty"` // unix milli
}

// Time returns Timestamp in the local zone.
func (t ScheduledTask) Time() time.Time { return time.UnixMilli(t.Timestamp) }

func (t ScheduledTask) Recurring() bool { return t.ScheduleType.Recurring() }

// Validate checks the row-level invariants.
func (t ScheduledTask) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return &ValidationError{Field: "taskName", Reason: "required"}
	}
	if !t.Action.Valid() {
		return &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", t.Action)}
	}
	if !t.ScheduleType.Valid() {
		return &ValidationError{Field: "scheduleType", Reason: fmt.Sprintf("unknown schedule type %q", t.ScheduleType)}
	}
	if t.ScheduleType == Weekly && t.DaysOfWeek.Empty() {
		return &ValidationError{Field: "daysOfWeek", Reason: "weekly schedule needs at least one day"}
	}
	return nil
}
