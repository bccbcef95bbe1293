package indicator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestBollingerInsufficientData(t *testing.T) {
	_, err := BollingerBands(series(100, 101), 3, 2)
	require.ErrorIs(t, err, ErrInsufficientData)

	_, err = BollingerBands(nil, 1, 2)
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestBollingerInvalidConfig(t *testing.T) {
	_, err := BollingerBands(series(100), 0, 2)
	require.Error(t, err)

	_, err = BollingerBands(series(100), 1, 0)
	require.Error(t, err)
}

func TestBollingerFlatSeriesCollapses(t *testing.T) {
	bands, err := BollingerBands(series(100, 100, 100, 100), 4, 2)
	require.NoError(t, err)

	hundred := decimal.NewFromInt(100)
	require.True(t, bands.Middle.Equal(hundred), "middle %s", bands.Middle)
	require.True(t, bands.Upper.Equal(hundred), "upper %s", bands.Upper)
	require.True(t, bands.Lower.Equal(hundred), "lower %s", bands.Lower)
}

func TestBollingerKnownWindow(t *testing.T) {
	// Window {98, 100, 102}: mean 100, sample deviation 2, k=2 -> 96/104.
	bands, err := BollingerBands(series(55, 98, 100, 102), 3, 2)
	require.NoError(t, err)

	require.True(t, bands.Middle.Equal(decimal.NewFromInt(100)), "middle %s", bands.Middle)
	require.True(t, bands.Upper.Equal(decimal.NewFromInt(104)), "upper %s", bands.Upper)
	require.True(t, bands.Lower.Equal(decimal.NewFromInt(96)), "lower %s", bands.Lower)
}

func TestBollingerPeriodOne(t *testing.T) {
	bands, err := BollingerBands(series(98, 123.45), 1, 2)
	require.NoError(t, err)

	last := decimal.NewFromFloat(123.45)
	require.True(t, bands.Middle.Equal(last))
	require.True(t, bands.Upper.Equal(last))
	require.True(t, bands.Lower.Equal(last))
}

func TestBollingerOrdering(t *testing.T) {
	bands, err := BollingerBands(series(10, 12, 9, 14, 11, 13), 5, 1.5)
	require.NoError(t, err)
	require.True(t, bands.Lower.LessThan(bands.Middle))
	require.True(t, bands.Middle.LessThan(bands.Upper))
}
