package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"financial-alarms/internal/alarm"
	"financial-alarms/internal/cache"
)

// Cached decorates a SeriesFetcher with a short-TTL cache so overlapping or
// closely spaced ticks do not refetch the same instrument. Cache failures
// degrade to a direct fetch.
type Cached struct {
	next   SeriesFetcher
	cache  cache.Cache
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCached wraps next with the given cache.
func NewCached(next SeriesFetcher, c cache.Cache, ttl time.Duration, logger zerolog.Logger) *Cached {
	return &Cached{
		next:   next,
		cache:  c,
		ttl:    ttl,
		logger: logger.With().Str("component", "series_cache").Logger(),
	}
}

// FetchSeries implements SeriesFetcher.
func (c *Cached) FetchSeries(ctx context.Context, class alarm.AssetClass, symbol string, minLen int) ([]decimal.Decimal, error) {
	key := fmt.Sprintf("series:%s:%s:%d", class, symbol, minLen)

	var cached []decimal.Decimal
	err := c.cache.Get(ctx, key, &cached)
	if err == nil && len(cached) > 0 {
		return cached, nil
	}
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed, fetching directly")
	}

	series, err := c.next.FetchSeries(ctx, class, symbol, minLen)
	if err != nil {
		return nil, err
	}

	if setErr := c.cache.Set(ctx, key, series, c.ttl); setErr != nil {
		c.logger.Warn().Err(setErr).Str("key", key).Msg("cache write failed")
	}
	return series, nil
}

var _ SeriesFetcher = (*Cached)(nil)
