package indicator

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func series(values ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func TestRSIInsufficientData(t *testing.T) {
	// period 14 needs 15 samples
	_, err := RSI(series(100, 101, 102), 14)
	require.ErrorIs(t, err, ErrInsufficientData)

	_, err = RSI(nil, 1)
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestRSIInvalidPeriod(t *testing.T) {
	_, err := RSI(series(100, 101), 0)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrInsufficientData))
}

func TestRSIAllGainsIsExactlyHundred(t *testing.T) {
	value, err := RSI(series(100, 101, 102, 103, 104), 4)
	require.NoError(t, err)
	require.Equal(t, 100.0, value)
}

func TestRSIAllLossesIsZero(t *testing.T) {
	value, err := RSI(series(104, 103, 102, 101, 100), 4)
	require.NoError(t, err)
	require.Equal(t, 0.0, value)
}

func TestRSIFlatSeriesIsHundred(t *testing.T) {
	// No losses at all still counts as fully overbought.
	value, err := RSI(series(100, 100, 100), 2)
	require.NoError(t, err)
	require.Equal(t, 100.0, value)
}

func TestRSIBalancedMovesIsFifty(t *testing.T) {
	// One +5 delta and one -5 delta: RS = 1, RSI = 50 exactly.
	value, err := RSI(series(100, 105, 100), 2)
	require.NoError(t, err)
	require.Equal(t, 50.0, value)
}

func TestRSIStaysWithinBounds(t *testing.T) {
	prices := series(44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42,
		45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28)
	value, err := RSI(prices, 14)
	require.NoError(t, err)
	require.GreaterOrEqual(t, value, 0.0)
	require.LessOrEqual(t, value, 100.0)
	// Mostly rising series must read overbought.
	require.Greater(t, value, 50.0)
}

func TestRSIUsesOnlyTheRequestedWindow(t *testing.T) {
	// The leading crash is outside the 2-delta window and must not count.
	value, err := RSI(series(500, 100, 101, 102), 2)
	require.NoError(t, err)
	require.Equal(t, 100.0, value)
}
