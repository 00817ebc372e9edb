package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"shutdownsched/internal/task"
)

// ErrCorrupt matches any CorruptError via errors.Is.
var ErrCorrupt = errors.New("task store corrupt")

// CorruptError is returned by Load when the backing file exists but cannot be
// parsed. The file is left in place.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("task store %s is unreadable: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

func (e *CorruptError) Is(target error) bool { return target == ErrCorrupt }

// Store is the durable registry of scheduled tasks.
type Store interface {
	// Load returns every persisted row. A missing backing file is an empty registry.
	Load(ctx context.Context) ([]task.ScheduledTask, error)
	// ReplaceAll atomically rewrites the whole registry.
	ReplaceAll(ctx context.Context, tasks []task.ScheduledTask) error
	// Path identifies the backing file.
	Path() string
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "file": JSON file rewritten atomically (default)
//   - "sqlite": SQLite database file (optional build tag)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// Fs overrides the filesystem used by the file driver. Nil means the OS filesystem.
	Fs afero.Fs
}
