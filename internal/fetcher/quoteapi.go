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

const quoteHistoryPath = "/history"

// QuoteAPIOptions parameterise the keyed quote API fetcher used for forex
// and stock symbols.
type QuoteAPIOptions struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// QuoteAPI fetches close series from a generic quote service.
type QuoteAPI struct {
	opts    QuoteAPIOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewQuoteAPI constructs a quote API fetcher.
func NewQuoteAPI(opts QuoteAPIOptions, logger zerolog.Logger) *QuoteAPI {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &QuoteAPI{
		opts:    opts,
		logger:  logger.With().Str("component", "quote_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

type quotePoint struct {
	Timestamp int64           `json:"timestamp"`
	Close     decimal.Decimal `json:"close"`
}

type quoteHistoryResponse struct {
	Symbol  string       `json:"symbol"`
	Candles []quotePoint `json:"candles"`
}

// FetchSeries retrieves the most recent minLen closes, chronological order.
func (q *QuoteAPI) FetchSeries(ctx context.Context, class alarm.AssetClass, symbol string, minLen int) ([]decimal.Decimal, error) {
	if q.baseURL == "" {
		return nil, fmt.Errorf("quote api base url not configured")
	}
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if minLen < 1 {
		minLen = 1
	}

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("limit", fmt.Sprintf("%d", minLen))

	endpoint := q.baseURL + quoteHistoryPath + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if q.opts.APIKey != "" {
		req.Header.Set("X-API-KEY", q.opts.APIKey)
	}
	if ua := strings.TrimSpace(q.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		if len(payload) > 0 {
			return nil, fmt.Errorf("quote api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
		}
		return nil, fmt.Errorf("quote api error (%d)", resp.StatusCode)
	}

	var history quoteHistoryResponse
	if err := json.Unmarshal(payload, &history); err != nil {
		return nil, fmt.Errorf("decode quote history: %w", err)
	}
	if len(history.Candles) < minLen {
		return nil, fmt.Errorf("quote api returned %d candles for %s, need %d", len(history.Candles), symbol, minLen)
	}

	series := make([]decimal.Decimal, 0, len(history.Candles))
	last := int64(0)
	for _, point := range history.Candles {
		if point.Timestamp < last {
			return nil, fmt.Errorf("quote history for %s is not chronological", symbol)
		}
		last = point.Timestamp
		series = append(series, point.Close)
	}

	return series, nil
}

var _ SeriesFetcher = (*QuoteAPI)(nil)
