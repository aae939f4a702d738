package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/yourusername/vgrab-go/internal/domain"
)

// Environment keys understood without the VGRAB_ prefix
var legacyEnvKeys = map[string]string{
	"batch.quality": "QUALITY",
	"batch.player":  "PLAYER",
	"batch.from":    "FROM",
	"batch.to":      "TO",
	"batch.name":    "NAME",
}

// FlagBinding maps a command line flag onto a config key
type FlagBinding struct {
	Key  string
	Flag *pflag.Flag
}

// LoadConfig loads configuration from file, .env, environment and flags.
// Precedence (highest first): changed flags, environment, config file, defaults.
func LoadConfig(configPath string, flags ...FlagBinding) (*domain.Config, error) {
	// .env never overrides variables already present in the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, config)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.vgrab")
		v.AddConfigPath("/etc/vgrab")
	}

	v.SetEnvPrefix("VGRAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range legacyEnvKeys {
		prefixed := "VGRAB_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	for _, fb := range flags {
		if fb.Flag == nil {
			continue
		}
		if err := v.BindPFlag(fb.Key, fb.Flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", fb.Flag.Name, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults registers every key so AutomaticEnv can reach it during Unmarshal
func setDefaults(v *viper.Viper, c *domain.Config) {
	v.SetDefault("batch.quality", c.Batch.Quality)
	v.SetDefault("batch.player", c.Batch.Player)
	v.SetDefault("batch.from", c.Batch.From)
	v.SetDefault("batch.to", c.Batch.To)
	v.SetDefault("batch.name", c.Batch.Name)

	v.SetDefault("download.dir", c.Download.Dir)
	v.SetDefault("download.extension", c.Download.Extension)
	v.SetDefault("download.collision_policy", c.Download.CollisionPolicy)
	v.SetDefault("download.user_agent", c.Download.UserAgent)
	v.SetDefault("download.header_timeout", c.Download.HeaderTimeout)
	v.SetDefault("download.stall_timeout", c.Download.StallTimeout)
	v.SetDefault("download.progress_interval", c.Download.ProgressInterval)

	v.SetDefault("browser.headless", c.Browser.Headless)
	v.SetDefault("browser.exec_path", c.Browser.ExecPath)
	v.SetDefault("browser.page_wait", c.Browser.PageWait)
	v.SetDefault("browser.resolve_timeout", c.Browser.ResolveTimeout)
	v.SetDefault("browser.list_selector", c.Browser.ListSelector)
	v.SetDefault("browser.quality_storage_key", c.Browser.QualityStorageKey)
	v.SetDefault("browser.pool_size", c.Browser.PoolSize)

	v.SetDefault("history.enabled", c.History.Enabled)
	v.SetDefault("history.database_path", c.History.DatabasePath)

	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)

	v.SetDefault("notification.enabled", c.Notification.Enabled)
	v.SetDefault("notification.method", c.Notification.Method)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)
	v.SetDefault("logging.output_path", c.Logging.OutputPath)
	v.SetDefault("logging.logs_dir", c.Logging.LogsDir)
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.Dir = expandPath(config.Download.Dir)
	config.Browser.ExecPath = expandPath(config.Browser.ExecPath)
	config.History.DatabasePath = expandPath(config.History.DatabasePath)
	config.Logging.LogsDir = expandPath(config.Logging.LogsDir)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	path = os.ExpandEnv(path)

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return path
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Download.Dir == "" {
		return fmt.Errorf("download directory not configured")
	}

	switch config.Download.CollisionPolicy {
	case domain.CollisionSuffix, domain.CollisionFail:
	default:
		return fmt.Errorf("unknown collision policy: %q", config.Download.CollisionPolicy)
	}

	if config.Download.HeaderTimeout <= 0 || config.Download.StallTimeout <= 0 {
		return fmt.Errorf("download timeouts must be positive")
	}

	if config.Browser.ResolveTimeout <= 0 {
		return fmt.Errorf("browser resolve timeout must be positive")
	}

	if config.Browser.PoolSize < 1 {
		return fmt.Errorf("browser pool size must be at least 1")
	}

	if config.Browser.ListSelector == "" {
		return fmt.Errorf("browser list selector not configured")
	}

	if config.History.Enabled && config.History.DatabasePath == "" {
		return fmt.Errorf("history database path not configured")
	}

	if config.Download.Extension != "" && !strings.HasPrefix(config.Download.Extension, ".") {
		config.Download.Extension = "." + config.Download.Extension
	}

	if config.Download.ProgressInterval <= 0 {
		config.Download.ProgressInterval = domain.DefaultConfig().Download.ProgressInterval
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	sections := map[string]interface{}{
		"batch":        config.Batch,
		"download":     config.Download,
		"browser":      config.Browser,
		"history":      config.History,
		"server":       config.Server,
		"notification": config.Notification,
		"logging":      config.Logging,
	}
	for name, section := range sections {
		values, err := sectionValues(section)
		if err != nil {
			return fmt.Errorf("failed to encode %s section: %w", name, err)
		}
		v.Set(name, values)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// sectionValues flattens a config section using its mapstructure keys.
// Durations are written as "30s" so the file stays hand-editable.
func sectionValues(section interface{}) (map[string]interface{}, error) {
	values := make(map[string]interface{})
	if err := mapstructure.Decode(section, &values); err != nil {
		return nil, err
	}
	for k, val := range values {
		if d, ok := val.(time.Duration); ok {
			values[k] = d.String()
		}
	}
	return values, nil
}
