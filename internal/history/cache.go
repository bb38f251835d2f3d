package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/turfline/velo/internal/domain"
)

// Source yields the historical stats slice for a scoped key, e.g. the
// feature-mart materializer or a fixture loader in tests.
type Source interface {
	Fetch(ctx context.Context, scope Scope) (*domain.HistoricalStats, error)
}

// Scope identifies a stats slice: runner connections narrowed by track,
// distance band and surface.
type Scope struct {
	Trainer      string `json:"trainer"`
	Jockey       string `json:"jockey"`
	Track        string `json:"track"`
	DistanceBand string `json:"distance_band"`
	Surface      string `json:"surface"`
}

// Key is the cache key for the scope.
func (s Scope) Key() string {
	return fmt.Sprintf("histstats:%s:%s:%s:%s:%s", s.Trainer, s.Jockey, s.Track, s.DistanceBand, s.Surface)
}

// CachedSource is a read-through redis cache in front of a Source. A nil
// client degrades to a direct pass-through; cache failures are logged and
// never fail a lookup.
type CachedSource struct {
	client *redis.Client
	next   Source
	ttl    time.Duration
}

// NewCachedSource wraps next with a redis read-through cache.
func NewCachedSource(client *redis.Client, next Source, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &CachedSource{client: client, next: next, ttl: ttl}
}

// Fetch returns the cached stats when present, otherwise falls through to
// the source and populates the cache.
func (c *CachedSource) Fetch(ctx context.Context, scope Scope) (*domain.HistoricalStats, error) {
	key := scope.Key()
	if c.client != nil {
		raw, err := c.client.Get(ctx, key).Result()
		if err == nil {
			var stats domain.HistoricalStats
			if jsonErr := json.Unmarshal([]byte(raw), &stats); jsonErr == nil {
				return &stats, nil
			}
			log.Warn().Str("key", key).Msg("histstats cache entry unreadable, refetching")
		} else if err != redis.Nil {
			log.Warn().Err(err).Str("key", key).Msg("histstats cache read failed")
		}
	}

	stats, err := c.next.Fetch(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("histstats source fetch: %w", err)
	}
	if c.client != nil && stats != nil {
		if raw, err := json.Marshal(stats); err == nil {
			if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("histstats cache write failed")
			}
		}
	}
	return stats, nil
}
