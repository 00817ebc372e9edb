package config

import (
	"sort"
	"strings"

	logx "shutdownsched/pkg/logx"
)

// SummarizeConfigChange lists the sections that differ and log fields
// describing the new values.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.String("storage.path", strings.TrimSpace(newCfg.Storage.Path)),
		)
	}
	if oldCfg.Dispatch != newCfg.Dispatch {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.String("dispatch.backend", newCfg.Dispatch.Backend),
			logx.String("dispatch.timeout", newCfg.Dispatch.Timeout),
			logx.Int("dispatch.rate_per_sec", newCfg.Dispatch.RatePerSec),
		)
	}
	if oldCfg.Status != newCfg.Status {
		changed = append(changed, "status")
		attrs = append(attrs,
			logx.String("status.refresh", newCfg.Status.Refresh),
			logx.String("status.poll", newCfg.Status.Poll),
		)
	}
	if oldCfg.Tasks != newCfg.Tasks {
		changed = append(changed, "tasks")
		attrs = append(attrs, logx.String("tasks.prefix", newCfg.Tasks.Prefix))
	}
	sort.Strings(changed)
	return changed, attrs
}

// NeedsRestart reports changes that only take effect after a restart of the
// watch daemon (the store and dispatcher are opened once).
func NeedsRestart(changed []string) bool {
	for _, s := range changed {
		if s == "storage" || s == "dispatch" || s == "tasks" {
			return true
		}
	}
	return false
}
