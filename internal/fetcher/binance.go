package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"financial-alarms/internal/alarm"
)

const binanceKlinesPath = "/api/v3/klines"

// BinanceOptions parameterise the Binance spot klines fetcher.
type BinanceOptions struct {
	BaseURL   string
	Interval  string
	Timeout   time.Duration
	UserAgent string
}

// Binance fetches candle closes from the Binance spot API.
type Binance struct {
	opts    BinanceOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewBinance constructs a Binance fetcher.
func NewBinance(opts BinanceOptions, logger zerolog.Logger) *Binance {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	if opts.Interval == "" {
		opts.Interval = "1h"
	}

	return &Binance{
		opts:    opts,
		logger:  logger.With().Str("component", "binance_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// symbol pairs on Binance carry no separator: BTC-USD -> BTCUSD.
var symbolReplacer = strings.NewReplacer("-", "", "/", "")

// FetchSeries retrieves the most recent minLen closes, chronological order.
func (b *Binance) FetchSeries(ctx context.Context, class alarm.AssetClass, symbol string, minLen int) ([]decimal.Decimal, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if minLen < 1 {
		minLen = 1
	}

	query := url.Values{}
	query.Set("symbol", strings.ToUpper(symbolReplacer.Replace(symbol)))
	query.Set("interval", b.opts.Interval)
	query.Set("limit", fmt.Sprintf("%d", minLen))

	endpoint := b.baseURL + binanceKlinesPath + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseBinanceError(resp.StatusCode, payload)
	}

	// Each kline is a positional array; index 4 is the close price.
	var klines [][]json.RawMessage
	if err := json.Unmarshal(payload, &klines); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}
	if len(klines) < minLen {
		return nil, fmt.Errorf("binance returned %d klines for %s, need %d", len(klines), symbol, minLen)
	}

	series := make([]decimal.Decimal, 0, len(klines))
	for _, kline := range klines {
		if len(kline) < 5 {
			return nil, fmt.Errorf("malformed kline with %d fields", len(kline))
		}
		var closeStr string
		if err := json.Unmarshal(kline[4], &closeStr); err != nil {
			return nil, fmt.Errorf("decode close price: %w", err)
		}
		price, err := decimal.NewFromString(closeStr)
		if err != nil {
			return nil, fmt.Errorf("parse close price: %w", err)
		}
		series = append(series, price)
	}

	return series, nil
}

type binanceError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func parseBinanceError(status int, payload []byte) error {
	var apiErr binanceError
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Msg != "" {
		return fmt.Errorf("binance api error (%d): %s", status, apiErr.Msg)
	}
	if len(payload) > 0 {
		return fmt.Errorf("binance api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("binance api error (%d)", status)
}

var _ SeriesFetcher = (*Binance)(nil)
