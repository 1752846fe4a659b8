// Package config loads daemon configuration from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vthunder/diner/internal/store"
)

// FileName is the config file looked up under the state directory
const FileName = "diner.yaml"

// Config is the daemon configuration
type Config struct {
	StatePath string         `yaml:"state_path"`
	Listen    string         `yaml:"listen"`
	Debug     bool           `yaml:"debug"`
	Seed      int64          `yaml:"seed"` // 0 seeds from the clock
	Settings  store.Settings `yaml:"settings"`

	Tracking     TrackingConfig     `yaml:"tracking"`
	Intervention InterventionConfig `yaml:"intervention"`
	Summary      SummaryConfig      `yaml:"summary"`
	Discord      DiscordConfig      `yaml:"discord"`
	Browser      BrowserConfig      `yaml:"browser"`
}

// TrackingConfig controls the per-context collectors
type TrackingConfig struct {
	DebounceSeconds       int `yaml:"debounce_seconds"`
	ReportIntervalSeconds int `yaml:"report_interval_seconds"`
}

// InterventionConfig controls the alert lifecycle
type InterventionConfig struct {
	AckTimeoutSeconds  int     `yaml:"ack_timeout_seconds"`
	BurstSpeed         float64 `yaml:"burst_speed"`
	BurstMinActive     int     `yaml:"burst_min_active"`
	RapidSwitchSeconds int     `yaml:"rapid_switch_seconds"`
	RapidSwitchLimit   int     `yaml:"rapid_switch_limit"`
}

// SummaryConfig points at the daily analysis service
type SummaryConfig struct {
	URL            string `yaml:"url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	RatePerMinute  int    `yaml:"rate_per_minute"`
}

// DiscordConfig enables forwarding notifications to a channel
type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// BrowserConfig controls the browser process watcher
type BrowserConfig struct {
	ProcessNames []string `yaml:"process_names"`
	PollSeconds  int      `yaml:"poll_seconds"` // 0 disables the watcher
}

// Default returns the stock configuration
func Default() Config {
	return Config{
		StatePath: "state",
		Listen:    "127.0.0.1:7420",
		Settings:  store.DefaultSettings(),
		Tracking: TrackingConfig{
			DebounceSeconds:       5,
			ReportIntervalSeconds: 30,
		},
		Intervention: InterventionConfig{
			AckTimeoutSeconds:  30,
			BurstSpeed:         2000,
			BurstMinActive:     30,
			RapidSwitchSeconds: 5,
			RapidSwitchLimit:   5,
		},
		Summary: SummaryConfig{
			TimeoutSeconds: 30,
			RatePerMinute:  6,
		},
		Browser: BrowserConfig{
			ProcessNames: []string{"chrome", "chromium", "firefox", "brave", "msedge", "safari"},
			PollSeconds:  10,
		},
	}
}

// Load reads path (missing file means defaults) and applies environment overrides
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFromState loads FileName under the state directory named by
// DINER_STATE_PATH (default "state")
func LoadFromState() (Config, error) {
	statePath := os.Getenv("DINER_STATE_PATH")
	if statePath == "" {
		statePath = Default().StatePath
	}
	return Load(filepath.Join(statePath, FileName))
}

// ApplyEnv overrides fields from environment variables
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("DINER_STATE_PATH"); v != "" {
		c.StatePath = v
	}
	if v := getenv("DINER_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := getenv("DINER_SUMMARY_URL"); v != "" {
		c.Summary.URL = v
	}
	if v := getenv("DINER_SUMMARY_API_KEY"); v != "" {
		c.Summary.APIKey = v
	}
	if v := getenv("DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := getenv("DISCORD_CHANNEL_ID"); v != "" {
		c.Discord.ChannelID = v
	}
	if v := getenv("DINER_DEBUG"); v != "" {
		c.Debug = strings.EqualFold(v, "true") || v == "1"
	}
	if v := getenv("DINER_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Seed = seed
		}
	}
}

// Validate checks the configuration for values the daemon cannot run with
func (c Config) Validate() error {
	if err := c.Settings.Validate(); err != nil {
		return err
	}
	if c.Tracking.DebounceSeconds <= 0 || c.Tracking.ReportIntervalSeconds <= 0 {
		return fmt.Errorf("tracking intervals must be positive")
	}
	if c.Intervention.AckTimeoutSeconds <= 0 {
		return fmt.Errorf("ack timeout must be positive")
	}
	return nil
}

// DebounceDelay returns the scroll debounce as a duration
func (c Config) DebounceDelay() time.Duration {
	return time.Duration(c.Tracking.DebounceSeconds) * time.Second
}

// ReportInterval returns the periodic report interval as a duration
func (c Config) ReportInterval() time.Duration {
	return time.Duration(c.Tracking.ReportIntervalSeconds) * time.Second
}

// AckTimeout returns how long an unacknowledged alert stays active
func (c Config) AckTimeout() time.Duration {
	return time.Duration(c.Intervention.AckTimeoutSeconds) * time.Second
}
