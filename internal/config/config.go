// Package config loads the pi CLI's process configuration from a YAML
// file plus environment overrides, grounded on the viper.New/SetDefault/
// ReadInConfig/Unmarshal sequence the pack's other config.Load function
// uses for a comparable worker process.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/pi-cli/pi/internal/policy"
)

// Config is the effective configuration for one `pi` process.
type Config struct {
	ExtensionsDir   string  `mapstructure:"extensions_dir"`
	PromptCachePath string  `mapstructure:"prompt_cache_path"`
	LogLevel        string  `mapstructure:"log_level"`
	RatePerSecond   float64 `mapstructure:"rate_per_second"`
	RateBurst       int     `mapstructure:"rate_burst"`
	MetricsAddr     string  `mapstructure:"metrics_addr"`

	Policy policy.ExtensionPolicyConfig `mapstructure:"policy"`
}

func defaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		ExtensionsDir:   home + "/.pi/extensions",
		PromptCachePath: home + "/.pi/permissions.json",
		LogLevel:        "info",
		RatePerSecond:   0,
		RateBurst:       0,
		MetricsAddr:     ":9090",
		Policy: policy.ExtensionPolicyConfig{
			Profile: "standard",
		},
	}
}

// Load reads configuration from a YAML file at path (if it exists) with
// PI_-prefixed environment variable overrides, falling back to
// defaultConfig for anything neither source sets.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("extensions_dir", def.ExtensionsDir)
	v.SetDefault("prompt_cache_path", def.PromptCachePath)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("rate_per_second", def.RatePerSecond)
	v.SetDefault("rate_burst", def.RateBurst)
	v.SetDefault("metrics_addr", def.MetricsAddr)
	v.SetDefault("policy.profile", def.Policy.Profile)
	v.SetDefault("policy.allow_dangerous", def.Policy.AllowDangerous)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// LogSlogLevel parses c.LogLevel into a slog.Level, defaulting to Info
// for an unrecognized or empty value.
func (c *Config) LogSlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
