package metrics

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/alanyoungcy/pmuniverse/internal/domain"
)

// Pusher publishes run metrics to a Prometheus Pushgateway. A batch job
// exits before any scraper could reach it, so metrics are pushed instead.
type Pusher struct {
	metrics *Metrics
	url     string
	job     string
	logger  *slog.Logger
}

// NewPusher creates a Pusher for the gateway at url under job.
func NewPusher(m *Metrics, url, job string, logger *slog.Logger) *Pusher {
	return &Pusher{
		metrics: m,
		url:     url,
		job:     job,
		logger:  logger.With(slog.String("component", "pushgateway")),
	}
}

// Name implements domain.Publisher.
func (p *Pusher) Name() string { return "pushgateway" }

// Publish records the manifest in the run gauges and pushes the whole
// registry, replacing whatever the job pushed before.
func (p *Pusher) Publish(ctx context.Context, snap domain.Snapshot) error {
	p.metrics.ObserveManifest(snap.Manifest)

	err := push.New(p.url, p.job).
		Gatherer(p.metrics.Registry()).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("metrics: push to %s: %w", p.url, err)
	}
	p.logger.DebugContext(ctx, "pushed run metrics",
		slog.String("job", p.job),
		slog.String("run_id", snap.Manifest.RunID),
	)
	return nil
}
