package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"financial-alarms/internal/alarm"
	"financial-alarms/internal/cache"
)

type countingFetcher struct {
	calls  int
	series []decimal.Decimal
}

func (f *countingFetcher) FetchSeries(ctx context.Context, class alarm.AssetClass, symbol string, minLen int) ([]decimal.Decimal, error) {
	f.calls++
	return f.series, nil
}

func TestCachedFetcherDedupes(t *testing.T) {
	now := time.Unix(1000, 0)
	mem := cache.NewMemoryWithClock(func() time.Time { return now })

	upstream := &countingFetcher{series: []decimal.Decimal{decimal.NewFromInt(50001)}}
	cached := NewCached(upstream, mem, 30*time.Second, noopLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		series, err := cached.FetchSeries(ctx, alarm.AssetCrypto, "BTC-USD", 1)
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if len(series) != 1 || !series[0].Equal(decimal.NewFromInt(50001)) {
			t.Fatalf("fetch %d returned %v", i, series)
		}
	}
	if upstream.calls != 1 {
		t.Fatalf("upstream should be hit once, got %d", upstream.calls)
	}

	// After the TTL the upstream is consulted again.
	now = now.Add(time.Minute)
	if _, err := cached.FetchSeries(ctx, alarm.AssetCrypto, "BTC-USD", 1); err != nil {
		t.Fatalf("fetch after expiry: %v", err)
	}
	if upstream.calls != 2 {
		t.Fatalf("expired entry should refetch, got %d calls", upstream.calls)
	}
}

func TestCachedFetcherKeyIncludesLength(t *testing.T) {
	mem := cache.NewMemory()
	upstream := &countingFetcher{series: []decimal.Decimal{decimal.NewFromInt(1)}}
	cached := NewCached(upstream, mem, time.Minute, noopLogger())
	ctx := context.Background()

	_, _ = cached.FetchSeries(ctx, alarm.AssetCrypto, "BTC-USD", 1)
	_, _ = cached.FetchSeries(ctx, alarm.AssetCrypto, "BTC-USD", 15)
	if upstream.calls != 2 {
		t.Fatalf("different lengths must not share cache entries, got %d calls", upstream.calls)
	}
}
