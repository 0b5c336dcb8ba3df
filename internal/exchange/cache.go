package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/audio-retro/internal/pkg/logger"
)

// SharedCache stores live rates in Redis so concurrent or back-to-back runs
// reuse one lookup. Only use it when rates up to ttl old are acceptable.
type SharedCache struct {
	next   RateSource
	client *redis.Client
	ttl    time.Duration
}

// NewSharedCache wraps next with a Redis-backed cache.
func NewSharedCache(next RateSource, client *redis.Client, ttl time.Duration) *SharedCache {
	return &SharedCache{next: next, client: client, ttl: ttl}
}

func cacheKey(source, target string) string {
	return fmt.Sprintf("exchange:rate:%s:%s", strings.ToUpper(source), strings.ToUpper(target))
}

// GetRate serves from Redis when present. Redis errors fall through to next.
func (s *SharedCache) GetRate(ctx context.Context, source, target string) (float64, error) {
	key := cacheKey(source, target)

	val, err := s.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if r, perr := strconv.ParseFloat(val, 64); perr == nil && r > 0 {
			return r, nil
		}
		logger.Warn("exchange: ignoring malformed cached rate", "key", key, "value", val)
	case err != redis.Nil:
		logger.Warn("exchange: shared cache read failed", "key", key, "error", err)
	}

	r, err := s.next.GetRate(ctx, source, target)
	if err != nil {
		return 0, err
	}
	if err := s.client.Set(ctx, key, strconv.FormatFloat(r, 'f', -1, 64), s.ttl).Err(); err != nil {
		logger.Warn("exchange: shared cache write failed", "key", key, "error", err)
	}
	return r, nil
}
