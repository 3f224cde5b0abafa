package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/pmuniverse/internal/blob/s3"
	"github.com/alanyoungcy/pmuniverse/internal/cache/redis"
	"github.com/alanyoungcy/pmuniverse/internal/config"
	"github.com/alanyoungcy/pmuniverse/internal/domain"
	"github.com/alanyoungcy/pmuniverse/internal/metrics"
	"github.com/alanyoungcy/pmuniverse/internal/notify"
	"github.com/alanyoungcy/pmuniverse/internal/platform/kalshi"
	"github.com/alanyoungcy/pmuniverse/internal/platform/polymarket"
	"github.com/alanyoungcy/pmuniverse/internal/platform/rest"
	"github.com/alanyoungcy/pmuniverse/internal/ratelimit"
)

// Operating modes.
const (
	ModeFetch  = "fetch"
	ModeKalshi = "kalshi"
	ModeFilter = "filter"
)

// notifyRate paces chat webhook requests per second.
const notifyRate = 1.0

const mib = 1 << 20

// Dependencies bundles what the modes need. Fields a mode does not use are
// left nil.
type Dependencies struct {
	Metrics *metrics.Metrics

	// Upstream clients, one rate limiter each.
	Gamma  *polymarket.GammaClient
	Clob   *polymarket.ClobClient
	Kalshi *kalshi.Client

	LockManager domain.LockManager
	Publishers  []domain.Publisher
}

// Wire constructs the dependencies of mode from cfg and returns them with a
// cleanup function that releases every opened resource.
func Wire(ctx context.Context, cfg *config.Config, mode string, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Metrics: metrics.New("pmuniverse")}
	policy := rest.Policy{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		Backoff:           cfg.Retry.Backoff.Duration,
		DefaultRetryAfter: cfg.Retry.DefaultRetryAfter.Duration,
	}
	newRest := func(service, baseURL string, rate float64, timeout time.Duration, opts ...rest.Option) *rest.Client {
		opts = append([]rest.Option{
			rest.WithPolicy(policy),
			rest.WithTimeout(timeout),
			rest.WithTransport(deps.Metrics.Transport(service)),
			rest.WithLogger(logger),
		}, opts...)
		return rest.New(service, baseURL, ratelimit.New(rate), opts...)
	}

	switch mode {
	case ModeFetch:
		var auth []rest.Option
		if cfg.Polymarket.BearerToken != "" {
			auth = append(auth, rest.WithBearerToken(cfg.Polymarket.BearerToken))
		}
		gammaRC := newRest("gamma", cfg.Polymarket.GammaHost, cfg.Catalog.Rate, cfg.Catalog.Timeout.Duration, auth...)
		clobRC := newRest("clob", cfg.Polymarket.ClobHost, cfg.Pricing.Rate, cfg.Pricing.Timeout.Duration, auth...)
		closers = append(closers, gammaRC.CloseIdle, clobRC.CloseIdle)
		deps.Gamma = polymarket.NewGammaClient(gammaRC, logger)
		deps.Clob = polymarket.NewClobClient(clobRC, logger)

		if err := wirePublishers(ctx, cfg, deps, newRest, &closers, logger); err != nil {
			cleanup()
			return nil, nil, err
		}

	case ModeKalshi:
		var auth []rest.Option
		if cfg.Kalshi.APIToken != "" {
			auth = append(auth, rest.WithBearerToken(cfg.Kalshi.APIToken))
		}
		rc := newRest("kalshi", cfg.Kalshi.BaseURL, cfg.Kalshi.Rate, cfg.Kalshi.Timeout.Duration, auth...)
		closers = append(closers, rc.CloseIdle)
		deps.Kalshi = kalshi.NewClient(rc, logger)
	}

	return deps, cleanup, nil
}

type restFactory func(service, baseURL string, rate float64, timeout time.Duration, opts ...rest.Option) *rest.Client

// wirePublishers connects every enabled publisher. An unreachable Redis
// fails the wiring.
func wirePublishers(ctx context.Context, cfg *config.Config, deps *Dependencies, newRest restFactory, closers *[]func(), logger *slog.Logger) error {
	// --- S3 mirror ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Transport:      deps.Metrics.Transport("s3")(),
		})
		if err != nil {
			return fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "s3 health check failed, uploads may fail",
				slog.String("error", err.Error()))
		}
		deps.Publishers = append(deps.Publishers, s3blob.NewMirror(
			s3blob.NewWriter(s3Client),
			s3blob.MirrorConfig{
				Prefix:             cfg.S3.Prefix,
				MultipartThreshold: cfg.S3.MultipartThreshold * mib,
				PartSize:           cfg.S3.PartSize * mib,
			},
			logger,
		))
	}

	// --- Redis cache and run lock ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fmt.Errorf("wire: redis: %w", err)
		}
		*closers = append(*closers, func() { _ = redisClient.Close() })

		deps.Publishers = append(deps.Publishers,
			redis.NewSnapshotCache(redisClient, cfg.Redis.SnapshotTTL.Duration, logger))
		if cfg.Redis.RunLock {
			deps.LockManager = redis.NewLockManager(redisClient)
		}
	}

	// --- Pushgateway ---
	if cfg.Metrics.Enabled {
		deps.Publishers = append(deps.Publishers,
			metrics.NewPusher(deps.Metrics, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, logger))
	}

	// --- Notifications ---
	if cfg.Notify.Enabled {
		var senders []notify.Sender
		if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
			rc := newRest("telegram", notify.TelegramBaseURL(notify.TelegramAPI, cfg.Notify.TelegramToken),
				notifyRate, 10*time.Second)
			senders = append(senders, notify.NewTelegramSender(rc, cfg.Notify.TelegramChatID))
		}
		if cfg.Notify.DiscordWebhookURL != "" {
			rc := newRest("discord", cfg.Notify.DiscordWebhookURL, notifyRate, 10*time.Second)
			senders = append(senders, notify.NewDiscordSender(rc))
		}
		deps.Publishers = append(deps.Publishers,
			notify.NewRunNotifier(notify.NewNotifier(senders, cfg.Notify.Events, logger)))
	}

	return nil
}
