package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/pmuniverse/internal/domain"
)

// Key schema.
//
//	price:{token_id}   hash of bid, ask, mid, status, ts, market_id, outcome
//	snapshot:latest    manifest JSON of the last published run
//	lock:{name}        run lock token
const (
	LatestSnapshotKey = "snapshot:latest"
	pipelineChunk     = 500
)

func PriceKey(tokenID string) string { return "price:" + tokenID }

func LockKey(name string) string { return "lock:" + name }

// SnapshotCache publishes the prices of a finished run to Redis so other
// services can read the latest quotes without parsing CSV.
type SnapshotCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// NewSnapshotCache creates a SnapshotCache whose keys expire after ttl.
// A zero ttl keeps keys forever.
func NewSnapshotCache(c *Client, ttl time.Duration, logger *slog.Logger) *SnapshotCache {
	return &SnapshotCache{
		rdb:    c.Underlying(),
		ttl:    ttl,
		logger: logger.With(slog.String("component", "redis_cache")),
	}
}

// Name implements domain.Publisher.
func (sc *SnapshotCache) Name() string { return "redis" }

// Publish writes every ok price and then the manifest. Runs that priced
// nothing only update the manifest key.
func (sc *SnapshotCache) Publish(ctx context.Context, snap domain.Snapshot) error {
	written := 0
	for start := 0; start < len(snap.Prices); start += pipelineChunk {
		end := min(start+pipelineChunk, len(snap.Prices))
		n, err := sc.writePrices(ctx, snap.Prices[start:end])
		if err != nil {
			return err
		}
		written += n
	}

	manifest, err := json.Marshal(snap.Manifest)
	if err != nil {
		return fmt.Errorf("redis: marshal manifest: %w", err)
	}
	if err := sc.rdb.Set(ctx, LatestSnapshotKey, manifest, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", LatestSnapshotKey, err)
	}

	sc.logger.InfoContext(ctx, "cached snapshot",
		slog.String("run_id", snap.Manifest.RunID),
		slog.Int("prices", written),
	)
	return nil
}

func (sc *SnapshotCache) writePrices(ctx context.Context, prices []domain.PriceResult) (int, error) {
	n := 0
	_, err := sc.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range prices {
			if p.Status != domain.PriceStatusOK {
				continue
			}
			key := PriceKey(p.TokenID)
			pipe.HSet(ctx, key, PriceFields(p))
			if sc.ttl > 0 {
				pipe.Expire(ctx, key, sc.ttl)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis: write prices: %w", err)
	}
	return n, nil
}

// PriceFields returns the hash fields stored for one price row.
func PriceFields(p domain.PriceResult) map[string]any {
	return map[string]any{
		"bid":       p.Bid,
		"ask":       p.Ask,
		"mid":       p.Mid,
		"status":    string(p.Status),
		"ts":        p.SnapshotTS.UTC().Format(time.RFC3339),
		"market_id": p.MarketID,
		"outcome":   p.Outcome,
	}
}

var _ domain.Publisher = (*SnapshotCache)(nil)
