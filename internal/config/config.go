package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete atkrun configuration
type Config struct {
	Bridge   BridgeConfig   `mapstructure:"bridge" yaml:"bridge"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts"`
	Wait     WaitConfig     `mapstructure:"wait" yaml:"wait"`
	Batch    BatchConfig    `mapstructure:"batch" yaml:"batch"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`
}

// BridgeConfig identifies the HTTP bridge and the engine it should connect to
type BridgeConfig struct {
	// BaseURL is the bridge root, e.g. http://localhost:8080. A trailing
	// slash is tolerated.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// Host is the engine host the bridge opens a connection to
	Host string `mapstructure:"host" yaml:"host"`
	// Port is the engine port the bridge opens a connection to
	Port int `mapstructure:"port" yaml:"port"`
}

// TimeoutsConfig bounds each HTTP exchange with the bridge
type TimeoutsConfig struct {
	// CommandMs bounds each /atk/connect call (default: 10000)
	CommandMs int `mapstructure:"command_ms" yaml:"command_ms"`
	// OpenCloseMs bounds /atk/open and /atk/close (default: 5000)
	OpenCloseMs int `mapstructure:"open_close_ms" yaml:"open_close_ms"`
}

// WaitConfig is the per-command event wait policy sent as waitMs
type WaitConfig struct {
	// NewVerbMs applies to the "new" verb (default: 60)
	NewVerbMs int `mapstructure:"new_verb_ms" yaml:"new_verb_ms"`
	// DefaultMs applies to every other verb (default: 200)
	DefaultMs int `mapstructure:"default_ms" yaml:"default_ms"`
}

// BatchConfig controls pacing inside a batch
type BatchConfig struct {
	// InterCommandDelayMs is the pause after each command (default: 100)
	InterCommandDelayMs int `mapstructure:"inter_command_delay_ms" yaml:"inter_command_delay_ms"`
	// CloseGraceMs is the pause before the session is closed (default: 0)
	CloseGraceMs int `mapstructure:"close_grace_ms" yaml:"close_grace_ms"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether runs write a log file (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is the log directory. Empty means <config dir>/logs.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the maximum log file size before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated files (default: false)
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// ReportConfig selects where batch results are rendered
type ReportConfig struct {
	// Format is the stdout rendering: "console", "jsonl" or "none" (default: "console")
	Format string `mapstructure:"format" yaml:"format"`
	// MQTT publishes results to a broker when Broker is set
	MQTT MQTTConfig `mapstructure:"mqtt" yaml:"mqtt"`
}

// MQTTConfig configures the optional MQTT result sink
type MQTTConfig struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883. Empty disables the sink.
	Broker string `mapstructure:"broker" yaml:"broker"`
	// ClientID defaults to "atkrun-<run id prefix>" when empty
	ClientID    string `mapstructure:"client_id" yaml:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix" yaml:"topic_prefix"`
	Username    string `mapstructure:"username" yaml:"username"`
	Password    string `mapstructure:"password" yaml:"password"`
	// QoS is the publish quality of service, 0-2 (default: 1)
	QoS int `mapstructure:"qos" yaml:"qos"`
	// TimeoutMs bounds connect and each publish (default: 5000)
	TimeoutMs int `mapstructure:"timeout_ms" yaml:"timeout_ms"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			BaseURL: "http://localhost:8080",
			Host:    "127.0.0.1",
			Port:    6655,
		},
		Timeouts: TimeoutsConfig{
			CommandMs:   10000,
			OpenCloseMs: 5000,
		},
		Wait: WaitConfig{
			NewVerbMs: 60,
			DefaultMs: 200,
		},
		Batch: BatchConfig{
			InterCommandDelayMs: 100,
			CloseGraceMs:        0,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			Dir:        "", // Empty means <config dir>/logs
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
		Report: ReportConfig{
			Format: "console",
			MQTT: MQTTConfig{
				Broker:      "", // Disabled
				TopicPrefix: "atkrun",
				QoS:         1,
				TimeoutMs:   5000,
			},
		},
	}
}

// CommandTimeout returns the per-command HTTP timeout as a time.Duration
func (c *TimeoutsConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandMs) * time.Millisecond
}

// OpenCloseTimeout returns the open/close HTTP timeout as a time.Duration
func (c *TimeoutsConfig) OpenCloseTimeout() time.Duration {
	return time.Duration(c.OpenCloseMs) * time.Millisecond
}

// InterCommandDelay returns the inter-command pause as a time.Duration
func (c *BatchConfig) InterCommandDelay() time.Duration {
	return time.Duration(c.InterCommandDelayMs) * time.Millisecond
}

// CloseGrace returns the pre-close pause as a time.Duration
func (c *BatchConfig) CloseGrace() time.Duration {
	return time.Duration(c.CloseGraceMs) * time.Millisecond
}

// Timeout returns the MQTT connect/publish timeout as a time.Duration
func (c *MQTTConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// ResolveDir returns the resolved log directory.
// If Dir is empty, it returns <config dir>/logs.
// If Dir starts with ~, it expands to the user's home directory.
// If Dir is a relative path, it's resolved relative to baseDir.
func (l *LoggingConfig) ResolveDir(baseDir string) string {
	if l.Dir == "" {
		return filepath.Join(ConfigDir(), "logs")
	}

	path := l.Dir

	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Bridge defaults
	viper.SetDefault("bridge.base_url", defaults.Bridge.BaseURL)
	viper.SetDefault("bridge.host", defaults.Bridge.Host)
	viper.SetDefault("bridge.port", defaults.Bridge.Port)

	// Timeout defaults
	viper.SetDefault("timeouts.command_ms", defaults.Timeouts.CommandMs)
	viper.SetDefault("timeouts.open_close_ms", defaults.Timeouts.OpenCloseMs)

	// Wait policy defaults
	viper.SetDefault("wait.new_verb_ms", defaults.Wait.NewVerbMs)
	viper.SetDefault("wait.default_ms", defaults.Wait.DefaultMs)

	// Batch defaults
	viper.SetDefault("batch.inter_command_delay_ms", defaults.Batch.InterCommandDelayMs)
	viper.SetDefault("batch.close_grace_ms", defaults.Batch.CloseGraceMs)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Report defaults
	viper.SetDefault("report.format", defaults.Report.Format)
	viper.SetDefault("report.mqtt.broker", defaults.Report.MQTT.Broker)
	viper.SetDefault("report.mqtt.client_id", defaults.Report.MQTT.ClientID)
	viper.SetDefault("report.mqtt.topic_prefix", defaults.Report.MQTT.TopicPrefix)
	viper.SetDefault("report.mqtt.username", defaults.Report.MQTT.Username)
	viper.SetDefault("report.mqtt.password", defaults.Report.MQTT.Password)
	viper.SetDefault("report.mqtt.qos", defaults.Report.MQTT.QoS)
	viper.SetDefault("report.mqtt.timeout_ms", defaults.Report.MQTT.TimeoutMs)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "atkrun")
	}
	// Fall back to ~/.config/atkrun
	home, err := os.UserHomeDir()
	if err != nil {
		return ".atkrun"
	}
	return filepath.Join(home, ".config", "atkrun")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidReportFormats returns the list of valid report.format values
func ValidReportFormats() []string {
	return []string{"console", "jsonl", "none"}
}
