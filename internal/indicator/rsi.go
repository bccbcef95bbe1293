package indicator

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RSI computes the Relative Strength Index over the last period price
// deltas: average gain / average loss, mapped to 100 - 100/(1+RS). The
// series must hold at least period+1 samples. An average loss of exactly
// zero defines the result as exactly 100.
func RSI(series []decimal.Decimal, period int) (float64, error) {
	if period < 1 {
		return 0, fmt.Errorf("rsi period must be positive, got %d", period)
	}
	if len(series) < period+1 {
		return 0, ErrInsufficientData
	}

	window := series[len(series)-period-1:]

	var gain, loss float64
	for i := 1; i < len(window); i++ {
		delta, _ := window[i].Sub(window[i-1]).Float64()
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}

	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	if avgLoss == 0 {
		return 100, nil
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}
