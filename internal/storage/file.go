package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/afero"

	"shutdownsched/internal/task"
	logx "shutdownsched/pkg/logx"
)

// fileStore keeps the registry in one JSON file (an array of rows).
//
// Every ReplaceAll writes a temp file in the same directory, syncs it and
// renames it over the target, so readers see either the old or the new
// complete content. The file is created lazily on the first write.
type fileStore struct {
	log  logx.Logger
	fs   afero.Fs
	path string
	now  func() time.Time

	mu sync.Mutex
	// corrupt is set when Load could not parse the file; the next write moves
	// the unreadable file aside instead of overwriting it.
	corrupt bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &fileStore{
		log:  log,
		fs:   fs,
		path: filepath.Clean(cfg.Path),
		now:  time.Now,
	}, nil
}

func (s *fileStore) Path() string { return s.path }

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Load(ctx context.Context) ([]task.ScheduledTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []task.ScheduledTask{}, nil
	}
	if err != nil {
		return nil, err
	}

	var rows []task.ScheduledTask
	if err := json.Unmarshal(b, &rows); err != nil {
		s.corrupt = true
		return nil, &CorruptError{Path: s.path, Err: err}
	}
	if rows == nil {
		rows = []task.ScheduledTask{}
	}
	return rows, nil
}

func (s *fileStore) ReplaceAll(ctx context.Context, tasks []task.ScheduledTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tasks == nil {
		tasks = []task.ScheduledTask{}
	}
	b, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if s.corrupt {
		if err := s.preserveCorruptLocked(); err != nil {
			return err
		}
	}

	f, err := afero.TempFile(s.fs, dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	return nil
}

// preserveCorruptLocked renames the unreadable registry to <path>.corrupt-<unixms>.
func (s *fileStore) preserveCorruptLocked() error {
	dst := s.path + ".corrupt-" + strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.fs.Rename(s.path, dst); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.corrupt = false
			return nil
		}
		return err
	}
	s.corrupt = false
	s.log.Warn("unreadable task store preserved", logx.String("path", s.path), logx.String("moved_to", dst))
	return nil
}
