package app

import (
	"strings"
	"time"

	"shutdownsched/internal/config"
	"shutdownsched/internal/dispatch"
	"shutdownsched/internal/storage"
	logx "shutdownsched/pkg/logx"
)

const defaultBusyTimeout = 1 * time.Second

func mapStorageConfig(cfg *config.Config) storage.Config {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	out := storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path)}
	if driver == "sqlite" || driver == "sqlite3" {
		out.BusyTimeout = config.DurationOr(sc.BusyTimeout, defaultBusyTimeout)
	}
	return out
}

func mapDispatchOptions(cfg *config.Config, log logx.Logger) dispatch.Options {
	return dispatch.Options{
		Backend:    cfg.Dispatch.Backend,
		Timeout:    config.DurationOr(cfg.Dispatch.Timeout, dispatch.DefaultTimeout),
		RatePerSec: cfg.Dispatch.RatePerSec,
		Log:        log,
	}
}
