// Package config defines the top-level configuration for the snapshot tool
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PMU_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Run        RunConfig        `toml:"run"`
	Catalog    CatalogConfig    `toml:"catalog"`
	Pricing    PricingConfig    `toml:"pricing"`
	Retry      RetryConfig      `toml:"retry"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Filter     FilterConfig     `toml:"filter"`
	S3         S3Config         `toml:"s3"`
	Redis      RedisConfig      `toml:"redis"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds Polymarket API endpoints.
type PolymarketConfig struct {
	GammaHost   string `toml:"gamma_host"`
	ClobHost    string `toml:"clob_host"`
	BearerToken string `toml:"bearer_token"`
}

// RunConfig selects what a fetch run snapshots and where it writes.
type RunConfig struct {
	Date               string   `toml:"date"` // YYYY-MM-DD, empty for today (UTC)
	OutDir             string   `toml:"out_dir"`
	TagID              string   `toml:"tag_id"`
	SeriesID           string   `toml:"series_id"`
	Category           string   `toml:"category"`
	ResolveCategoryTag bool     `toml:"resolve_category_tag"`
	SportsOnly         bool     `toml:"sports_only"`
	SportsSeriesIDs    []string `toml:"sports_series_ids"`
	MaxMarkets         int      `toml:"max_markets"`
	ActiveOnly         bool     `toml:"active_only"`
	DryRun             bool     `toml:"dry_run"`
	PublishTimeout     duration `toml:"publish_timeout"`
}

// CatalogConfig paces and bounds catalog enumeration.
type CatalogConfig struct {
	Rate     float64  `toml:"rate"` // requests per second
	PageSize int      `toml:"page_size"`
	MaxPages int      `toml:"max_pages"`
	Timeout  duration `toml:"timeout"`
}

// PricingConfig paces and bounds the price fan-out.
type PricingConfig struct {
	Rate        float64  `toml:"rate"` // requests per second, shared by all workers
	Concurrency int      `toml:"concurrency"`
	BatchSize   int      `toml:"batch_size"`
	Timeout     duration `toml:"timeout"`
}

// RetryConfig is the retry policy shared by every REST client.
type RetryConfig struct {
	MaxAttempts       int      `toml:"max_attempts"`
	Backoff           duration `toml:"backoff"`
	DefaultRetryAfter duration `toml:"default_retry_after"`
}

// KalshiConfig holds Kalshi exchange API parameters.
type KalshiConfig struct {
	BaseURL    string   `toml:"base_url"`
	APIToken   string   `toml:"api_token"`
	Rate       float64  `toml:"rate"`
	PageSize   int      `toml:"page_size"`
	Limit      int      `toml:"limit"`
	SportsOnly bool     `toml:"sports_only"`
	Timeout    duration `toml:"timeout"`
}

// FilterConfig drives the offline category filter.
type FilterConfig struct {
	Input    string `toml:"input"` // empty for today's markets CSV under run.out_dir
	Output   string `toml:"output"`
	Category string `toml:"category"`
}

// S3Config holds S3-compatible object storage parameters for the artifact
// mirror.
type S3Config struct {
	Enabled            bool   `toml:"enabled"`
	Endpoint           string `toml:"endpoint"`
	Region             string `toml:"region"`
	Bucket             string `toml:"bucket"`
	Prefix             string `toml:"prefix"`
	AccessKey          string `toml:"access_key"`
	SecretKey          string `toml:"secret_key"`
	UseSSL             bool   `toml:"use_ssl"`
	ForcePathStyle     bool   `toml:"force_path_style"`
	MultipartThreshold int64  `toml:"multipart_threshold_mb"`
	PartSize           int64  `toml:"part_size_mb"`
}

// RedisConfig holds Redis connection parameters for the latest-price cache
// and the run lock.
type RedisConfig struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PoolSize    int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	TLSEnabled  bool     `toml:"tls_enabled"`
	SnapshotTTL duration `toml:"snapshot_ttl"`
	RunLock     bool     `toml:"run_lock"`
	LockTTL     duration `toml:"lock_ttl"`
}

// MetricsConfig controls the Prometheus Pushgateway publisher.
type MetricsConfig struct {
	Enabled        bool   `toml:"enabled"`
	PushgatewayURL string `toml:"pushgateway_url"`
	Job            string `toml:"job"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	Enabled           bool     `toml:"enabled"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultSportsSeriesIDs are the Gamma series fetched in sports-only mode:
// NBA, NFL, NHL, MLB, college basketball and college football.
var DefaultSportsSeriesIDs = []string{"10345", "10187", "10346", "3", "10470", "10210"}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaHost: "https://gamma-api.polymarket.com",
			ClobHost:  "https://clob.polymarket.com",
		},
		Run: RunConfig{
			OutDir:             "data",
			ResolveCategoryTag: true,
			SportsSeriesIDs:    append([]string(nil), DefaultSportsSeriesIDs...),
			PublishTimeout:     duration{2 * time.Minute},
		},
		Catalog: CatalogConfig{
			Rate:     2.0,
			PageSize: 500,
			MaxPages: 500,
			Timeout:  duration{30 * time.Second},
		},
		Pricing: PricingConfig{
			Rate:        1.0,
			Concurrency: 5,
			BatchSize:   500,
			Timeout:     duration{30 * time.Second},
		},
		Retry: RetryConfig{
			MaxAttempts:       3,
			Backoff:           duration{time.Second},
			DefaultRetryAfter: duration{5 * time.Second},
		},
		Kalshi: KalshiConfig{
			BaseURL:    "https://api.elections.kalshi.com/trade-api/v2",
			Rate:       2.0,
			PageSize:   100,
			Limit:      10000,
			SportsOnly: true,
			Timeout:    duration{30 * time.Second},
		},
		Filter: FilterConfig{
			Output: "filtered_markets.csv",
		},
		S3: S3Config{
			Endpoint:           "http://localhost:9000",
			Region:             "us-east-1",
			Bucket:             "pmuniverse-data",
			Prefix:             "snapshots",
			UseSSL:             false,
			ForcePathStyle:     true,
			MultipartThreshold: 16,
			PartSize:           8,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			DB:          0,
			PoolSize:    10,
			MaxRetries:  3,
			SnapshotTTL: duration{48 * time.Hour},
			RunLock:     true,
			LockTTL:     duration{2 * time.Hour},
		},
		Metrics: MetricsConfig{
			PushgatewayURL: "http://localhost:9091",
			Job:            "pmuniverse",
		},
		Notify: NotifyConfig{
			Events: []string{"run_completed", "run_failed"},
		},
		Mode:     "fetch",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"fetch":  true,
	"kalshi": true,
	"filter": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validEvents enumerates the notification event types.
var validEvents = map[string]bool{
	"run_completed": true,
	"run_failed":    true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: fetch, kalshi, filter)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Polymarket endpoints
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}

	// Run
	if c.Run.Date != "" {
		if _, err := time.Parse(time.DateOnly, c.Run.Date); err != nil {
			errs = append(errs, fmt.Sprintf("run: date must be YYYY-MM-DD, got %q", c.Run.Date))
		}
	}
	if c.Run.OutDir == "" {
		errs = append(errs, "run: out_dir must not be empty")
	}
	if c.Run.TagID != "" && c.Run.SeriesID != "" {
		errs = append(errs, "run: tag_id and series_id are mutually exclusive")
	}
	if c.Run.SportsOnly && len(c.Run.SportsSeriesIDs) == 0 {
		errs = append(errs, "run: sports_series_ids must not be empty when sports_only is set")
	}
	if c.Run.MaxMarkets < 0 {
		errs = append(errs, "run: max_markets must be >= 0")
	}

	// Catalog
	if c.Catalog.Rate < 0 {
		errs = append(errs, "catalog: rate must be >= 0")
	}
	if c.Catalog.PageSize < 1 {
		errs = append(errs, "catalog: page_size must be >= 1")
	}
	if c.Catalog.MaxPages < 1 {
		errs = append(errs, "catalog: max_pages must be >= 1")
	}

	// Pricing
	if c.Pricing.Rate < 0 {
		errs = append(errs, "pricing: rate must be >= 0")
	}
	if c.Pricing.Concurrency < 1 {
		errs = append(errs, "pricing: concurrency must be >= 1")
	}
	if c.Pricing.BatchSize < 2 {
		errs = append(errs, "pricing: batch_size must be >= 2")
	}

	// Retry
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry: max_attempts must be >= 1")
	}
	if c.Retry.Backoff.Duration < 0 {
		errs = append(errs, "retry: backoff must be >= 0")
	}

	// Kalshi
	if mode == "kalshi" && c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}

	// Filter
	if mode == "filter" && strings.TrimSpace(c.Filter.Category) == "" {
		errs = append(errs, "filter: category is required for filter mode")
	}
	if mode == "filter" && c.Filter.Output == "" {
		errs = append(errs, "filter: output must not be empty")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.PartSize < 5 {
			errs = append(errs, "s3: part_size_mb must be >= 5")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.PushgatewayURL == "" {
		errs = append(errs, "metrics: pushgateway_url must not be empty when enabled")
	}

	// Notify
	if c.Notify.Enabled {
		for _, ev := range c.Notify.Events {
			if !validEvents[ev] {
				errs = append(errs, fmt.Sprintf("notify: unknown event %q (valid: run_completed, run_failed)", ev))
			}
		}
		if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
			errs = append(errs, "notify: telegram_chat_id is required when telegram_token is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
