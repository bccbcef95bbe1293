package indicator

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Bands holds a Bollinger Bands result.
type Bands struct {
	Lower  decimal.Decimal
	Middle decimal.Decimal
	Upper  decimal.Decimal
}

// BollingerBands computes the simple moving average of the last period
// samples and widens it by stdDev multiples of the window's sample standard
// deviation. The series must hold at least period samples. With period 1 the
// sample deviation is undefined; it is taken as zero, collapsing the bands
// onto the price.
func BollingerBands(series []decimal.Decimal, period int, stdDev float64) (Bands, error) {
	if period < 1 {
		return Bands{}, fmt.Errorf("bollinger period must be positive, got %d", period)
	}
	if stdDev <= 0 {
		return Bands{}, fmt.Errorf("bollinger std_dev must be positive, got %f", stdDev)
	}
	if len(series) < period {
		return Bands{}, ErrInsufficientData
	}

	window := series[len(series)-period:]

	var sum float64
	values := make([]float64, len(window))
	for i, price := range window {
		values[i], _ = price.Float64()
		sum += values[i]
	}
	mean := sum / float64(period)

	var sigma float64
	if period > 1 {
		var squares float64
		for _, v := range values {
			diff := v - mean
			squares += diff * diff
		}
		sigma = math.Sqrt(squares / float64(period-1))
	}

	middle := decimal.NewFromFloat(mean)
	width := decimal.NewFromFloat(stdDev * sigma)

	return Bands{
		Lower:  middle.Sub(width),
		Middle: middle,
		Upper:  middle.Add(width),
	}, nil
}
