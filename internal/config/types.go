package config

// Config is the on-disk configuration (JSON, or YAML by file extension).
//
// All durations are Go duration strings ("500ms", "30s", "1m").
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Dispatch DispatchConfig `json:"dispatch"`
	Status   StatusConfig   `json:"status"`
	Tasks    TasksConfig    `json:"tasks"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the task registry backend.
//
// Example:
//
//	"storage": { "driver": "file", "path": "/home/me/.config/shutdown-scheduler/taskDatabase.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

// DispatchConfig controls how native scheduler commands are run.
//
// Backend values: auto (default), unix, at, cron, taskdef.
type DispatchConfig struct {
	Backend    string `json:"backend"`
	Timeout    string `json:"timeout"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StatusConfig controls the watch daemon.
type StatusConfig struct {
	// Refresh is how often elapsed tasks are advanced or marked completed.
	Refresh string `json:"refresh"`
	// Poll is how often the countdown line is redrawn.
	Poll string `json:"poll"`
}

type TasksConfig struct {
	// Prefix tags every native job owned by this program.
	Prefix string `json:"prefix"`
}
