package fetcher

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"financial-alarms/internal/alarm"
)

// SeriesFetcher pulls an ordered price series for an instrument. Samples are
// chronological, most recent last, and the series holds at least minLen
// samples; unavailable or insufficient data is an explicit error, never a
// silent short result.
type SeriesFetcher interface {
	FetchSeries(ctx context.Context, class alarm.AssetClass, symbol string, minLen int) ([]decimal.Decimal, error)
}

// Router dispatches fetches by asset class.
type Router struct {
	byClass map[alarm.AssetClass]SeriesFetcher
}

// NewRouter wires one fetcher per asset class. Crypto goes to the exchange
// fetcher, forex and stocks to the quote API.
func NewRouter(crypto, quote SeriesFetcher) *Router {
	return &Router{byClass: map[alarm.AssetClass]SeriesFetcher{
		alarm.AssetCrypto: crypto,
		alarm.AssetForex:  quote,
		alarm.AssetStock:  quote,
	}}
}

// FetchSeries implements SeriesFetcher.
func (r *Router) FetchSeries(ctx context.Context, class alarm.AssetClass, symbol string, minLen int) ([]decimal.Decimal, error) {
	f, ok := r.byClass[class]
	if !ok || f == nil {
		return nil, fmt.Errorf("no market data source for asset class %s", class)
	}
	return f.FetchSeries(ctx, class, symbol, minLen)
}

var _ SeriesFetcher = (*Router)(nil)
