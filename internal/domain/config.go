package domain

import "time"

// Config represents the application configuration
type Config struct {
	Batch        BatchConfig        `mapstructure:"batch"`
	Download     DownloadConfig     `mapstructure:"download"`
	Browser      BrowserConfig      `mapstructure:"browser"`
	History      HistoryConfig      `mapstructure:"history"`
	Server       ServerConfig       `mapstructure:"server"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// BatchConfig holds the per-run selection settings.
// These map to the QUALITY, PLAYER, FROM, TO and NAME environment keys.
type BatchConfig struct {
	Quality string `mapstructure:"quality"` // stream quality preference written before resolution
	Player  string `mapstructure:"player"`  // required locator prefix
	From    int    `mapstructure:"from"`    // 1-based, inclusive
	To      int    `mapstructure:"to"`      // 1-based, inclusive
	Name    string `mapstructure:"name"`    // file name prefix
}

// DownloadConfig contains download-related configuration
type DownloadConfig struct {
	Dir              string        `mapstructure:"dir"`
	Extension        string        `mapstructure:"extension"`
	CollisionPolicy  string        `mapstructure:"collision_policy"` // suffix, fail
	UserAgent        string        `mapstructure:"user_agent"`
	HeaderTimeout    time.Duration `mapstructure:"header_timeout"`
	StallTimeout     time.Duration `mapstructure:"stall_timeout"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
}

// BrowserConfig contains headless browser settings used for scraping and resolution
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"`
	ExecPath          string        `mapstructure:"exec_path"`
	PageWait          time.Duration `mapstructure:"page_wait"`
	ResolveTimeout    time.Duration `mapstructure:"resolve_timeout"`
	ListSelector      string        `mapstructure:"list_selector"`
	QualityStorageKey string        `mapstructure:"quality_storage_key"`
	PoolSize          int           `mapstructure:"pool_size"`
}

// HistoryConfig contains run history persistence settings
type HistoryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DatabasePath string `mapstructure:"database_path"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir"`
}

// Collision policies for derived file names within one batch.
const (
	CollisionSuffix = "suffix"
	CollisionFail   = "fail"
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Batch: BatchConfig{
			Quality: "1080p",
			Player:  "https://csst",
			From:    1,
			To:      12,
			Name:    "Title",
		},
		Download: DownloadConfig{
			Dir:              "./downloads",
			Extension:        ".mp4",
			CollisionPolicy:  CollisionSuffix,
			UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			HeaderTimeout:    30 * time.Second,
			StallTimeout:     60 * time.Second,
			ProgressInterval: time.Second,
		},
		Browser: BrowserConfig{
			Headless:          true,
			PageWait:          10 * time.Second,
			ResolveTimeout:    30 * time.Second,
			ListSelector:      "div.playlists-items ul",
			QualityStorageKey: "pljsquality",
			PoolSize:          1,
		},
		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: "$HOME/.vgrab/history.db",
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
		Notification: NotificationConfig{
			Enabled: false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
			LogsDir:    "$HOME/.vgrab/logs",
		},
	}
}
