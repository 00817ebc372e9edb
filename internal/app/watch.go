package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"shutdownsched/internal/config"
	"shutdownsched/internal/runtime/supervisor"
	"shutdownsched/internal/status"
	"shutdownsched/pkg/fswatch"
	logx "shutdownsched/pkg/logx"
)

const (
	defaultRefresh = time.Minute
	defaultPoll    = time.Second
)

// WatchOptions configures the foreground daemon.
type WatchOptions struct {
	// StatusOut receives the countdown line on every poll; nil disables it.
	StatusOut io.Writer
	// Notify sends sd_notify messages; nil uses daemon.SdNotify.
	Notify func(state string) (bool, error)
	// Now is the clock used for the status line.
	Now func() time.Time
}

type watcher struct {
	a    *App
	opts WatchOptions

	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	refresh time.Duration
	pollCh  chan time.Duration

	lastLine string
}

// Start runs the watch daemon under a supervisor: periodic refresh of elapsed
// tasks, reload of the registry after external writes, the countdown status
// line and config hot reload. It returns once everything is running.
func (a *App) Start(ctx context.Context, opts WatchOptions) error {
	if a.sup != nil {
		return errors.New("watch already started")
	}
	if opts.Notify == nil {
		opts.Notify = func(state string) (bool, error) { return daemon.SdNotify(false, state) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))), supervisor.WithCancelOnError(true))
	w := &watcher{a: a, opts: opts, pollCh: make(chan time.Duration, 1)}

	cfg := withOverrides(a.cfgm.Get(), a.opts)
	if _, err := a.mgr.Refresh(ctx); err != nil {
		a.log.Warn("initial refresh failed", logx.Err(err))
	}

	w.cron = cron.New()
	if err := w.setRefresh(config.DurationOr(cfg.Status.Refresh, defaultRefresh)); err != nil {
		a.sup.Cancel()
		return err
	}
	w.cron.Start()
	a.sup.Go0("refresh.cron", func(c context.Context) {
		<-c.Done()
		<-w.cron.Stop().Done()
	})

	a.sup.Go0("status.poll", func(c context.Context) {
		w.pollLoop(c, config.DurationOr(cfg.Status.Poll, defaultPoll))
	})

	if strings.EqualFold(cfg.Storage.Driver, "file") || strings.EqualFold(cfg.Storage.Driver, "json") {
		// The store creates its file lazily; the directory must exist to be watched.
		if err := os.MkdirAll(filepath.Dir(a.mgr.Path()), 0o755); err != nil {
			a.log.Warn("registry directory not created", logx.String("path", a.mgr.Path()), logx.Err(err))
		}
		a.sup.Go("registry.watch", func(c context.Context) error {
			return fswatch.Watch(c, a.mgr.Path(), fswatch.Options{Log: a.log.With(logx.String("comp", "fswatch"))}, func() {
				if err := a.mgr.Reload(c); err != nil {
					a.log.Warn("registry reload failed", logx.Err(err))
					return
				}
				a.log.Debug("registry reloaded", logx.Int("tasks", len(a.mgr.List())))
			})
		})
	}

	if a.cfgm.Path() != "" {
		// Reject a reload that would be invalid once the flag overrides apply.
		a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
			return config.Validate(withOverrides(c, a.opts))
		})
		sub := a.cfgm.Subscribe(8)
		a.sup.Go0("config.reload", func(c context.Context) {
			defer a.cfgm.Unsubscribe(sub)
			w.configLoop(c, sub, cfg)
		})
		a.sup.Go("config.watch", func(c context.Context) error {
			return a.cfgm.Watch(c)
		})
	}

	if ok, err := opts.Notify(daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	a.sup.Go0("notify.stopping", func(c context.Context) {
		<-c.Done()
		_, _ = opts.Notify(daemon.SdNotifyStopping)
	})

	a.log.Info("watch started",
		logx.String("backend", a.mgr.Backend()),
		logx.String("store", a.mgr.Path()),
		logx.Int("tasks", len(a.mgr.List())),
	)
	return nil
}

// setRefresh (re)registers the periodic refresh job.
func (w *watcher) setRefresh(every time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if every == w.refresh && w.entry != 0 {
		return nil
	}
	id, err := w.cron.AddFunc("@every "+every.String(), w.refreshOnce)
	if err != nil {
		return fmt.Errorf("status.refresh: %w", err)
	}
	if w.entry != 0 {
		w.cron.Remove(w.entry)
	}
	w.entry = id
	w.refresh = every
	return nil
}

func (w *watcher) refreshOnce() {
	ctx := w.a.sup.Context()
	if ctx.Err() != nil {
		return
	}
	n, err := w.a.mgr.Refresh(ctx)
	if err != nil {
		w.a.log.Warn("refresh failed", logx.Err(err))
		return
	}
	if n > 0 {
		w.a.log.Info("tasks refreshed", logx.Int("changed", n))
	}
}

func (w *watcher) pollLoop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	w.render()
	for {
		select {
		case <-ctx.Done():
			if w.opts.StatusOut != nil && w.lastLine != "" {
				_, _ = fmt.Fprintln(w.opts.StatusOut)
			}
			return
		case d := <-w.pollCh:
			t.Reset(d)
		case <-t.C:
			w.render()
		}
	}
}

// render redraws the countdown line and mirrors it to the service manager.
func (w *watcher) render() {
	rows := status.Project(w.a.mgr.List(), w.opts.Now())
	line := status.Title(rows)
	if line == "" {
		line = status.Placeholder
	}
	if w.opts.StatusOut != nil {
		pad := ""
		if n := len(w.lastLine) - len(line); n > 0 {
			pad = strings.Repeat(" ", n)
		}
		_, _ = fmt.Fprintf(w.opts.StatusOut, "\r%s%s", line, pad)
	}
	if line != w.lastLine {
		_, _ = w.opts.Notify("STATUS=" + line)
	}
	w.lastLine = line
}

func (w *watcher) configLoop(ctx context.Context, sub chan *config.Config, last *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Keep only the newest of a burst.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			next = withOverrides(next, w.a.opts)
			changed, attrs := config.SummarizeConfigChange(last, next)
			if len(changed) == 0 {
				w.a.log.Debug("config reload received, but no effective changes detected")
				continue
			}
			fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
			w.a.log.Info("config changed", fields...)

			w.a.logs.Apply(next.LogConfig())
			if err := w.setRefresh(config.DurationOr(next.Status.Refresh, defaultRefresh)); err != nil {
				w.a.log.Warn("refresh interval not applied", logx.Err(err))
			}
			select {
			case w.pollCh <- config.DurationOr(next.Status.Poll, defaultPoll):
			default:
			}
			if config.NeedsRestart(changed) {
				w.a.log.Warn("storage, dispatch or tasks settings changed; restart watch to apply them")
			}
			last = next
		}
	}
}
