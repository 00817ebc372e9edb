package dispatch

import (
	"fmt"
	"strings"
)

// Kind classifies a native scheduler failure.
type Kind int

const (
	KindFailed Kind = iota
	KindUnsupported
	KindPermissionDenied
	KindInvalidTime
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindUnsupported:
		return "unsupported"
	case KindPermissionDenied:
		return "permission denied"
	case KindInvalidTime:
		return "invalid time"
	case KindTimeout:
		return "timeout"
	default:
		return "failed"
	}
}

// Sentinels for errors.Is; they match any DispatchError of the same kind.
var (
	ErrUnsupported      = &DispatchError{Kind: KindUnsupported}
	ErrPermissionDenied = &DispatchError{Kind: KindPermissionDenied}
	ErrInvalidTime      = &DispatchError{Kind: KindInvalidTime}
	ErrTimeout          = &DispatchError{Kind: KindTimeout}
	ErrFailed           = &DispatchError{Kind: KindFailed}
)

// DispatchError is returned by every Dispatcher operation that fails.
type DispatchError struct {
	Kind   Kind
	Op     string // e.g. "at", "crontab -l", "taskdef create"
	Detail string // trimmed stderr or a short reason
	Err    error
}

func (e *DispatchError) Error() string {
	var b strings.Builder
	b.WriteString("dispatch")
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Is matches the kind sentinels (a DispatchError without Op).
func (e *DispatchError) Is(target error) bool {
	t, ok := target.(*DispatchError)
	if !ok || t.Op != "" || t.Detail != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, op, format string, args ...any) *DispatchError {
	return &DispatchError{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}
