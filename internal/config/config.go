// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/realtime-job-scraper/internal/dispatcher"
	"github.com/JakeFAU/realtime-job-scraper/internal/events"
	"github.com/JakeFAU/realtime-job-scraper/internal/extractor/linkedin"
	"github.com/JakeFAU/realtime-job-scraper/internal/logging"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging               logging.Config  `mapstructure:"logging"`
	Server                ServerConfig    `mapstructure:"server"`
	Auth                  AuthConfig      `mapstructure:"auth"`
	Browser               BrowserConfig   `mapstructure:"browser"`
	Pacing                PacingConfig    `mapstructure:"pacing"`
	LinkedIn              LinkedInConfig  `mapstructure:"linkedin"`
	GlobalOptions         OptionsConfig   `mapstructure:"global_options"`
	Sessions              []SessionConfig `mapstructure:"sessions"`
	MaxConcurrentSessions int             `mapstructure:"max_concurrent_sessions"`
	Output                OutputConfig    `mapstructure:"output"`
	Archive               ArchiveConfig   `mapstructure:"archive"`
	DB                    DBConfig        `mapstructure:"db"`
	Publish               PublishConfig   `mapstructure:"publish"`
	Hub                   HubConfig       `mapstructure:"hub"`
	Schedule              ScheduleConfig  `mapstructure:"schedule"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// RunTimeout bounds runs submitted through the API.
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// BrowserConfig selects and tunes the automation session.
type BrowserConfig struct {
	// Driver is "chromedp" (real browser) or "colly" (plain HTTP).
	Driver            string        `mapstructure:"driver"`
	Headless          bool          `mapstructure:"headless"`
	SlowMo            time.Duration `mapstructure:"slow_mo"`
	Args              []string      `mapstructure:"args"`
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	MaxTabs           int           `mapstructure:"max_tabs"`
	ExecPath          string        `mapstructure:"exec_path"`
}

// PacingConfig rate-limits navigations per host.
type PacingConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// LinkedInConfig points the extractor at a LinkedIn host.
type LinkedInConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// SessionConfig is one batch of queries run on its own session.
type SessionConfig struct {
	Name    string        `mapstructure:"name"`
	Queries []QueryConfig `mapstructure:"queries"`
}

// QueryConfig is a single query with its overrides.
type QueryConfig struct {
	Query   string        `mapstructure:"query" json:"query"`
	Options OptionsConfig `mapstructure:"options" json:"options"`
}

// OutputConfig controls file exports.
type OutputConfig struct {
	CSVPath string `mapstructure:"csv_path"`
}

// ArchiveConfig selects where description HTML is archived.
type ArchiveConfig struct {
	// Driver is one of none, memory, local, gcs.
	Driver    string `mapstructure:"driver"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to Postgres. Persistence is off when DSN is empty.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PublishConfig selects the notification transport.
type PublishConfig struct {
	// Driver is one of none, pubsub, redis.
	Driver    string `mapstructure:"driver"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
	RedisURL  string `mapstructure:"redis_url"`
}

// HubConfig tunes the batching hub in front of the sinks.
type HubConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	DropOnFull     bool          `mapstructure:"drop_on_full"`
}

// ScheduleConfig drives the schedule command.
type ScheduleConfig struct {
	Spec       string `mapstructure:"spec"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JOBSCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.run_timeout", 30*time.Minute)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("browser.driver", "chromedp")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.slow_mo", 200*time.Millisecond)
	v.SetDefault("browser.args", []string{"--lang=en-GB"})
	v.SetDefault("browser.navigation_timeout", 45*time.Second)
	v.SetDefault("browser.max_tabs", 1)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("pacing.requests_per_second", 1.0)
	v.SetDefault("pacing.burst", 1)
	v.SetDefault("linkedin.base_url", linkedin.DefaultBaseURL)
	v.SetDefault("max_concurrent_sessions", 2)
	v.SetDefault("output.csv_path", "")
	v.SetDefault("archive.driver", "none")
	v.SetDefault("archive.prefix", "descriptions")
	v.SetDefault("archive.base_dir", "")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "jobs")
	v.SetDefault("publish.driver", "none")
	v.SetDefault("publish.topic", "jobs")
	v.SetDefault("publish.project_id", "")
	v.SetDefault("publish.redis_url", "")
	v.SetDefault("hub.buffer_size", 4096)
	v.SetDefault("hub.max_batch_events", 100)
	v.SetDefault("hub.max_batch_wait", 500*time.Millisecond)
	v.SetDefault("schedule.spec", "@every 6h")
	v.SetDefault("schedule.run_on_start", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Browser.Driver {
	case "chromedp", "colly":
	default:
		return fmt.Errorf("browser.driver must be chromedp or colly, got %q", c.Browser.Driver)
	}
	if c.Browser.SlowMo < 0 {
		return fmt.Errorf("browser.slow_mo must be >= 0")
	}
	if c.Browser.MaxTabs < 0 {
		return fmt.Errorf("browser.max_tabs must be >= 0")
	}
	if c.Pacing.RequestsPerSecond < 0 {
		return fmt.Errorf("pacing.requests_per_second must be >= 0")
	}
	if c.MaxConcurrentSessions < 0 {
		return fmt.Errorf("max_concurrent_sessions must be >= 0")
	}
	switch c.Archive.Driver {
	case "none", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir is required for the local archive")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket is required for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.driver must be none, memory, local or gcs, got %q", c.Archive.Driver)
	}
	switch c.Publish.Driver {
	case "none":
	case "pubsub":
		if c.Publish.ProjectID == "" {
			return fmt.Errorf("publish.project_id is required for pubsub")
		}
	case "redis":
		if c.Publish.RedisURL == "" {
			return fmt.Errorf("publish.redis_url is required for redis")
		}
	default:
		return fmt.Errorf("publish.driver must be none, pubsub or redis, got %q", c.Publish.Driver)
	}
	if _, err := c.Batches(); err != nil {
		return err
	}
	return nil
}

// Batches converts the sessions section into dispatcher batches, one per session.
func (c Config) Batches() ([]dispatcher.Batch, error) {
	global, err := c.GlobalOptions.ToOptions()
	if err != nil {
		return nil, fmt.Errorf("global_options: %w", err)
	}
	batches := make([]dispatcher.Batch, 0, len(c.Sessions))
	for i, session := range c.Sessions {
		batch := dispatcher.Batch{Name: session.Name, Global: global}
		for j, q := range session.Queries {
			spec, err := q.ToQuerySpec()
			if err != nil {
				return nil, fmt.Errorf("sessions[%d].queries[%d]: %w", i, j, err)
			}
			batch.Queries = append(batch.Queries, spec)
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// EventHub builds the events hub settings.
func (c Config) EventHub() events.HubConfig {
	return events.HubConfig{
		BufferSize:     c.Hub.BufferSize,
		MaxBatchEvents: c.Hub.MaxBatchEvents,
		MaxBatchWait:   c.Hub.MaxBatchWait,
		DropOnFull:     c.Hub.DropOnFull,
	}
}
