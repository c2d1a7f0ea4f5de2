package config

// Config is the root daemon configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Storage selects the durable mirror for scheduled notifications.
	Storage StorageConfig `json:"storage"`

	// Queue controls the background notification queue.
	Queue QueueConfig `json:"queue"`

	// Timers controls the foreground timer manager.
	Timers TimersConfig `json:"timers"`

	// Sinks controls how due notifications are surfaced to the user.
	Sinks SinksConfig `json:"sinks"`

	// Locations points at the (read-only) saved-locations source used by
	// the periodic reconciliation pass.
	Locations LocationsConfig `json:"locations"`

	Debug DebugConfig `json:"debug,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console,omitempty"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig selects the durable store driver.
//
// Driver values:
//   - "file":   single-file JSON snapshot (dependency-free)
//   - "sqlite": SQLite database file
//   - "redis":  Redis hash (one field per notification id)
//
// If Driver is empty, "file" is assumed.
type StorageConfig struct {
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`

	// BusyTimeout applies to sqlite only; "0s" means the driver default.
	BusyTimeout string `json:"busy_timeout,omitempty"`

	Redis RedisConfig `json:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`

	// Key is the hash key holding all scheduled notifications.
	Key string `json:"key,omitempty"`
}

// QueueConfig controls the notification queue worker.
//
// Defaults (when fields are omitted/zero):
//   - scan_interval: "5s"
//   - keepalive_interval: "20s"
//   - retry_max: 3
//   - retry_backoff: "30s"
//   - command_buffer: 64
type QueueConfig struct {
	ScanInterval      string `json:"scan_interval,omitempty"`
	KeepAliveInterval string `json:"keepalive_interval,omitempty"`
	RetryMax          int    `json:"retry_max,omitempty"`
	RetryBackoff      string `json:"retry_backoff,omitempty"`
	CommandBuffer     int    `json:"command_buffer,omitempty"`
}

// TimersConfig controls the foreground timer manager.
//
// Defaults:
//   - default_reminder_minutes: 10
//   - resync: "1m"
type TimersConfig struct {
	DefaultReminderMinutes int    `json:"default_reminder_minutes,omitempty"`
	Resync                 string `json:"resync,omitempty"`
}

// SinksConfig configures delivery sinks. When a background-capable sink
// (desktop/telegram) is enabled it is tried first; the in-process callback
// sink is always available as the foreground fallback.
type SinksConfig struct {
	Desktop  DesktopSinkConfig  `json:"desktop,omitempty"`
	Telegram TelegramSinkConfig `json:"telegram,omitempty"`

	// RatePerSec caps delivery attempts per second (0 = default 3).
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type DesktopSinkConfig struct {
	Enabled bool `json:"enabled,omitempty"`

	// AppName is reported to the freedesktop notification daemon.
	AppName string `json:"app_name,omitempty"`
}

type TelegramSinkConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Token   string `json:"token,omitempty"`
	ChatID  int64  `json:"chat_id,omitempty"`
}

type LocationsConfig struct {
	Path string `json:"path,omitempty"`
}

type DebugConfig struct {
	Pprof PprofConfig `json:"pprof,omitempty"`
}

// PprofConfig controls the optional profiling HTTP server. A non-loopback
// addr requires a token.
type PprofConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
}
