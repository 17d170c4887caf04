package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`

	// Engine controls the delivery poll loop.
	Engine EngineConfig `json:"engine"`

	// Tournaments controls the fixed-slot broadcast schedule.
	Tournaments TournamentsConfig `json:"tournaments"`

	// Timezone is the system default IANA zone for owners without a stored
	// preference (e.g. "Europe/Moscow").
	Timezone string `json:"timezone,omitempty"`
}

type TelegramConfig struct {
	// Token may be left empty in the file and supplied via the
	// TELEGRAM_BOT_TOKEN environment variable instead.
	Token string `json:"token,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
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

type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite busy_timeout pragma).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// EngineConfig controls the delivery loop. All durations are Go duration
// strings (e.g. "500ms", "30s", "24h"); zero values fall back to engine
// defaults.
type EngineConfig struct {
	PollInterval string `json:"poll_interval,omitempty"`
	BatchSize    int    `json:"batch_size,omitempty"`
	// CatchUpWindow is how far back missed triggers are still honored
	// after downtime.
	CatchUpWindow string `json:"catch_up_window,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
}

type TournamentsConfig struct {
	Enabled bool `json:"enabled"`
	// ReconcileInterval is a Go duration string.
	ReconcileInterval string `json:"reconcile_interval,omitempty"`
}
