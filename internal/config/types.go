package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Tracker controls the stock polling engine.
	Tracker TrackerConfig `json:"tracker"`

	Storage     *StorageConfig     `json:"storage,omitempty"`
	Web         *WebConfig         `json:"web,omitempty"`
	Maintenance *MaintenanceConfig `json:"maintenance,omitempty"`
}

type TelegramConfig struct {
	// Token may be omitted here and supplied via the TELEGRAM_TOKEN
	// environment variable instead (.env is honored).
	Token        string  `json:"token,omitempty"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// TrackerConfig controls the polling engine shared by all subscriptions.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "1m"
//   - fetch_timeout: "10s"
//   - rate_per_sec:  25 (Telegram-wide send budget)
type TrackerConfig struct {
	// PollInterval is the fixed delay between stock fetches per subscriber.
	PollInterval string `json:"poll_interval,omitempty"`
	// FetchTimeout bounds a single fetch (both upstream requests).
	FetchTimeout string `json:"fetch_timeout,omitempty"`

	// StockURL/WeatherURL override the upstream endpoints (mainly for tests).
	StockURL   string `json:"stock_url,omitempty"`
	WeatherURL string `json:"weather_url,omitempty"`

	// RatePerSec caps outgoing notification messages across all chats.
	RatePerSec int `json:"rate_per_sec,omitempty"`

	// Prized seeds the prized-item watchlist. Owners can extend it at
	// runtime with /prized add.
	Prized []string `json:"prized,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./gagbot_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// WebConfig controls the keep-alive / status HTTP server.
type WebConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: ":8080"
}

// MaintenanceConfig controls background cron jobs.
//
// Specs are standard cron expressions (robfig/cron, 5-field).
type MaintenanceConfig struct {
	Enabled bool `json:"enabled"`
	// AuditRetention is how long audit entries are kept. Go duration
	// string; default "720h" (30 days).
	AuditRetention string `json:"audit_retention,omitempty"`
	// PruneSpec schedules the audit prune job. Default "30 4 * * *".
	PruneSpec string `json:"prune_spec,omitempty"`
	// StatsSpec schedules the periodic stats log line. Default "0 * * * *".
	StatsSpec string `json:"stats_spec,omitempty"`
	// Timezone for cron evaluation. Default: the game clock (Asia/Manila).
	Timezone string `json:"timezone,omitempty"`
}
