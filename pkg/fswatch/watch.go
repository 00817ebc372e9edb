// Package fswatch reports changes to a single file.
//
// The parent directory is watched (editors and atomic writers replace files
// by rename, which drops a watch on the file itself) and events are filtered
// by basename. Bursts are debounced. A watcher that breaks is recreated with
// a jittered exponential backoff.
package fswatch

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "shutdownsched/pkg/logx"
)

const (
	DefaultDebounce = 250 * time.Millisecond

	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

type Options struct {
	// Debounce is the quiet period before onChange runs. Zero uses DefaultDebounce.
	Debounce time.Duration
	Log      logx.Logger
}

// Watch calls onChange after path was written, created, renamed or removed.
// It blocks until ctx is done and always returns nil then.
func Watch(ctx context.Context, path string, opts Options, onChange func()) error {
	dir := filepath.Dir(path)
	file := filepath.Base(path)
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	delay := opts.Debounce
	if delay <= 0 {
		delay = DefaultDebounce
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	trigger := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(delay, func() {
			if ctx.Err() != nil {
				return
			}
			onChange()
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	sleep := func(reason string) bool {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		if backoff < restartBackoffMax {
			backoff *= 2
			if backoff > restartBackoffMax {
				backoff = restartBackoffMax
			}
		}
		log.Debug("file watcher restarting", logx.String("reason", reason), logx.String("dir", dir), logx.Duration("backoff", wait))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
			return true
		}
	}

	for ctx.Err() == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			log.Warn("file watcher init failed", logx.Err(err), logx.String("dir", dir))
			if !sleep("init") {
				return nil
			}
			continue
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			log.Warn("file watcher add failed", logx.Err(err), logx.String("dir", dir))
			if !sleep("add") {
				return nil
			}
			continue
		}
		backoff = restartBackoffBase
		log.Debug("file watcher started", logx.String("dir", dir), logx.String("file", file))

		if done := loop(ctx, w, file, trigger, log); done {
			_ = w.Close()
			return nil
		}
		_ = w.Close()
		if !sleep("broken") {
			return nil
		}
	}
	return nil
}

// loop drains one watcher. It returns true when ctx ended and false when the
// watcher broke and must be recreated.
func loop(ctx context.Context, w *fsnotify.Watcher, file string, trigger func(), log logx.Logger) bool {
	const interesting = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove | fsnotify.Chmod
	for {
		select {
		case <-ctx.Done():
			return true
		case ev, ok := <-w.Events:
			if !ok {
				return false
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) && ev.Op&interesting != 0 {
				trigger()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return false
			}
			if err == nil {
				continue
			}
			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "overflow") {
				// Events may have been lost; assume the file changed.
				log.Warn("file watcher overflow", logx.Err(err))
				trigger()
				continue
			}
			log.Warn("file watcher error", logx.Err(err))
			if strings.Contains(msg, "closed") {
				return false
			}
		}
	}
}
