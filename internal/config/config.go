// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	DB        DBConfig        `mapstructure:"db"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Enrich    EnrichConfig    `mapstructure:"enrich"`
	Sitemap   SitemapConfig   `mapstructure:"sitemap"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DBConfig controls access to the Postgres idea store.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PipelineConfig governs the enrichment batch loop. BatchSize doubles as
// the worker pool width: each batch fans out fully.
type PipelineConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

// EnrichConfig configures the remote enrichment API client.
type EnrichConfig struct {
	APIURL           string        `mapstructure:"api_url"`
	FieldSetKey      string        `mapstructure:"field_set_key"`
	FallbackInterest string        `mapstructure:"fallback_interest"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// SitemapConfig configures sitemap discovery.
type SitemapConfig struct {
	IndexURL  string        `mapstructure:"index_url"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ArchiveConfig selects where raw sitemap documents are archived.
// Backend "none" disables archiving.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// PublisherConfig holds metadata for processed-idea notifications.
// An empty topic disables publishing.
type PublisherConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig controls the optional admin/metrics HTTP listener.
// An empty address disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IDEAHARVEST")
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
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "ideas")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("pipeline.batch_size", 10)
	v.SetDefault("enrich.api_url", "https://pinterest.com/resource/InterestResource/get/")
	v.SetDefault("enrich.field_set_key", "ideas_hub")
	v.SetDefault("enrich.fallback_interest", "")
	v.SetDefault("enrich.max_attempts", 5)
	v.SetDefault("enrich.retry_backoff", time.Duration(0))
	v.SetDefault("enrich.timeout", 15*time.Second)
	v.SetDefault("sitemap.index_url", "")
	v.SetDefault("sitemap.user_agent", "ideaharvest/0.1")
	v.SetDefault("sitemap.timeout", 30*time.Second)
	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.base_dir", "")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "sitemaps")
	v.SetDefault("publisher.project_id", "")
	v.SetDefault("publisher.topic", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be > 0")
	}
	if c.Enrich.MaxAttempts <= 0 {
		return fmt.Errorf("enrich.max_attempts must be > 0")
	}
	if c.Enrich.RetryBackoff < 0 {
		return fmt.Errorf("enrich.retry_backoff must be >= 0")
	}
	if c.Enrich.Timeout <= 0 {
		return fmt.Errorf("enrich.timeout must be > 0")
	}
	if c.Enrich.APIURL == "" {
		return fmt.Errorf("enrich.api_url is required")
	}
	switch c.Archive.Backend {
	case "", "none", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set when archive.backend is local")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set when archive.backend is gcs")
		}
	default:
		return fmt.Errorf("unknown archive.backend %q", c.Archive.Backend)
	}
	if c.Publisher.Topic != "" && c.Publisher.ProjectID == "" {
		return fmt.Errorf("publisher.project_id must be set when publisher.topic is set")
	}
	return nil
}
