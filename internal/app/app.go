package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"shutdownsched/internal/config"
	"shutdownsched/internal/dispatch"
	"shutdownsched/internal/manager"
	"shutdownsched/internal/runtime/supervisor"
	"shutdownsched/internal/storage"
	logx "shutdownsched/pkg/logx"
)

// Options are the process-level overrides taken from the command line.
type Options struct {
	ConfigPath string
	// StorePath replaces storage.path when set.
	StorePath string
	// LogLevel replaces logging.level when set.
	LogLevel string

	// Dispatcher replaces the detected native backend (tests).
	Dispatcher dispatch.Dispatcher
	// ManagerOptions are appended after the ones derived from config.
	ManagerOptions []manager.Option
}

// App owns the config, logging, registry store and task manager of one process.
type App struct {
	opts Options

	cfgm  *config.ConfigManager
	logs  *logx.Service
	log   logx.Logger
	store storage.Store
	disp  dispatch.Dispatcher
	mgr   *manager.Manager

	sup *supervisor.Supervisor
}

// New loads the config and opens everything a command needs. Close releases it.
func New(ctx context.Context, opts Options) (*App, error) {
	cfgm := config.NewConfigManager(strings.TrimSpace(opts.ConfigPath))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	cfg = withOverrides(cfg, opts)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	cfgm.Commit(cfg)

	logSvc, log := logx.New(cfg.LogConfig())
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{opts: opts, cfgm: cfgm, logs: logSvc, log: log}

	a.store, err = storage.Open(mapStorageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	a.disp = opts.Dispatcher
	if a.disp == nil {
		a.disp, err = dispatch.Open(mapDispatchOptions(cfg, log))
		if err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	mopts := []manager.Option{
		manager.WithLogger(log.With(logx.String("comp", "manager"))),
		manager.WithPrefix(cfg.Tasks.Prefix),
	}
	mopts = append(mopts, opts.ManagerOptions...)
	a.mgr, err = manager.New(ctx, a.store, a.disp, mopts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	log.Debug("app ready",
		logx.String("backend", a.disp.Name()),
		logx.String("store", a.store.Path()),
		logx.String("config", cfgm.Path()),
	)
	return a, nil
}

// withOverrides returns a copy of cfg with the command-line overrides applied.
func withOverrides(cfg *config.Config, opts Options) *config.Config {
	c := *cfg
	if s := strings.TrimSpace(opts.StorePath); s != "" {
		c.Storage.Path = s
	}
	if s := strings.TrimSpace(opts.LogLevel); s != "" {
		c.Logging.Level = s
	}
	return &c
}

func (a *App) Manager() *manager.Manager { return a.mgr }

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Config() *config.Config { return a.cfgm.Get() }

// Done is closed when the watch supervisor stops (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the watch supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Stop ends the watch daemon, if running, and waits for its goroutines.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	err := a.sup.Stop(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the store and log sinks.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}

// Preflight logs host problems that make native jobs unlikely to fire.
func (a *App) Preflight(ctx context.Context) {
	if !dispatch.Privileged() {
		a.log.Warn("not running as root; native jobs run as this user and may not be allowed to power off")
	}
	states, err := dispatch.Probe(ctx)
	if err != nil {
		if errors.Is(err, dispatch.ErrUnsupported) {
			a.log.Debug("scheduler daemon probe skipped", logx.Err(err))
			return
		}
		a.log.Warn("scheduler daemon probe failed", logx.Err(err))
		return
	}
	if missing := dispatch.MissingDaemons(states); len(missing) > 0 {
		a.log.Warn("scheduler daemons not running; queued jobs will not fire", logx.Strings("missing", missing))
	}
}
