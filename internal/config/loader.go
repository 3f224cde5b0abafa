package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PMU_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PMU_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "PMU_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.ClobHost, "PMU_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.BearerToken, "PMU_POLYMARKET_BEARER_TOKEN")

	// ── Run ──
	setStr(&cfg.Run.Date, "PMU_RUN_DATE")
	setStr(&cfg.Run.OutDir, "PMU_RUN_OUT_DIR")
	setStr(&cfg.Run.TagID, "PMU_RUN_TAG_ID")
	setStr(&cfg.Run.SeriesID, "PMU_RUN_SERIES_ID")
	setStr(&cfg.Run.Category, "PMU_RUN_CATEGORY")
	setBool(&cfg.Run.ResolveCategoryTag, "PMU_RUN_RESOLVE_CATEGORY_TAG")
	setBool(&cfg.Run.SportsOnly, "PMU_RUN_SPORTS_ONLY")
	setStringSlice(&cfg.Run.SportsSeriesIDs, "PMU_RUN_SPORTS_SERIES_IDS")
	setInt(&cfg.Run.MaxMarkets, "PMU_RUN_MAX_MARKETS")
	setBool(&cfg.Run.ActiveOnly, "PMU_RUN_ACTIVE_ONLY")
	setBool(&cfg.Run.DryRun, "PMU_RUN_DRY_RUN")
	setDuration(&cfg.Run.PublishTimeout, "PMU_RUN_PUBLISH_TIMEOUT")

	// ── Catalog ──
	setFloat64(&cfg.Catalog.Rate, "PMU_CATALOG_RATE")
	setInt(&cfg.Catalog.PageSize, "PMU_CATALOG_PAGE_SIZE")
	setInt(&cfg.Catalog.MaxPages, "PMU_CATALOG_MAX_PAGES")
	setDuration(&cfg.Catalog.Timeout, "PMU_CATALOG_TIMEOUT")

	// ── Pricing ──
	setFloat64(&cfg.Pricing.Rate, "PMU_PRICING_RATE")
	setInt(&cfg.Pricing.Concurrency, "PMU_PRICING_CONCURRENCY")
	setInt(&cfg.Pricing.BatchSize, "PMU_PRICING_BATCH_SIZE")
	setDuration(&cfg.Pricing.Timeout, "PMU_PRICING_TIMEOUT")

	// ── Retry ──
	setInt(&cfg.Retry.MaxAttempts, "PMU_RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.Retry.Backoff, "PMU_RETRY_BACKOFF")
	setDuration(&cfg.Retry.DefaultRetryAfter, "PMU_RETRY_DEFAULT_RETRY_AFTER")

	// ── Kalshi ──
	setStr(&cfg.Kalshi.BaseURL, "PMU_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.APIToken, "PMU_KALSHI_API_TOKEN")
	setFloat64(&cfg.Kalshi.Rate, "PMU_KALSHI_RATE")
	setInt(&cfg.Kalshi.PageSize, "PMU_KALSHI_PAGE_SIZE")
	setInt(&cfg.Kalshi.Limit, "PMU_KALSHI_LIMIT")
	setBool(&cfg.Kalshi.SportsOnly, "PMU_KALSHI_SPORTS_ONLY")
	setDuration(&cfg.Kalshi.Timeout, "PMU_KALSHI_TIMEOUT")

	// ── Filter ──
	setStr(&cfg.Filter.Input, "PMU_FILTER_INPUT")
	setStr(&cfg.Filter.Output, "PMU_FILTER_OUTPUT")
	setStr(&cfg.Filter.Category, "PMU_FILTER_CATEGORY")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PMU_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PMU_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PMU_S3_REGION")
	setStr(&cfg.S3.Bucket, "PMU_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "PMU_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "PMU_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PMU_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PMU_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PMU_S3_FORCE_PATH_STYLE")
	setInt64(&cfg.S3.MultipartThreshold, "PMU_S3_MULTIPART_THRESHOLD_MB")
	setInt64(&cfg.S3.PartSize, "PMU_S3_PART_SIZE_MB")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PMU_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PMU_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PMU_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PMU_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PMU_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PMU_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PMU_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.SnapshotTTL, "PMU_REDIS_SNAPSHOT_TTL")
	setBool(&cfg.Redis.RunLock, "PMU_REDIS_RUN_LOCK")
	setDuration(&cfg.Redis.LockTTL, "PMU_REDIS_LOCK_TTL")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "PMU_METRICS_ENABLED")
	setStr(&cfg.Metrics.PushgatewayURL, "PMU_METRICS_PUSHGATEWAY_URL")
	setStr(&cfg.Metrics.Job, "PMU_METRICS_JOB")

	// ── Notify ──
	setBool(&cfg.Notify.Enabled, "PMU_NOTIFY_ENABLED")
	setStr(&cfg.Notify.TelegramToken, "PMU_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PMU_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PMU_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PMU_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PMU_MODE")
	setStr(&cfg.LogLevel, "PMU_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
