package manager

import (
	"time"

	"shutdownsched/internal/task"
	logx "shutdownsched/pkg/logx"
)

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(m *Manager) {
		if !log.IsZero() {
			m.log = log
		}
	}
}

// WithPrefix sets the tag prefix of generated task names.
func WithPrefix(prefix string) Option {
	return func(m *Manager) {
		if prefix != "" {
			m.prefix = prefix
		}
	}
}

func WithNameFunc(fn task.NameFunc) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newName = fn
		}
	}
}
