// Package evaluate maps an alarm and a fetched price series to a ternary
// fire decision.
package evaluate

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"financial-alarms/internal/alarm"
	"financial-alarms/internal/indicator"
)

// Outcome is the ternary evaluation result.
type Outcome int

const (
	// NoFire means the condition was evaluated and is false.
	NoFire Outcome = iota
	// Fire means the condition was evaluated and is true.
	Fire
	// NotEvaluable means the series is still too short for the alarm's
	// window. Not an error: the alarm stays pending untouched.
	NotEvaluable
)

func (o Outcome) String() string {
	switch o {
	case NoFire:
		return "no_fire"
	case Fire:
		return "fire"
	case NotEvaluable:
		return "not_evaluable"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result carries the decision plus the context a notification needs.
type Result struct {
	Outcome Outcome
	// Price is the most recent sample of the series.
	Price decimal.Decimal
	// Reason is a short human-readable account of the decision, empty for
	// NotEvaluable.
	Reason string
}

// Evaluate runs the alarm's condition against the series (oldest first,
// newest last). Boundary comparisons are inclusive throughout: an alarm set
// exactly at the current value fires.
func Evaluate(a *alarm.Alarm, series []decimal.Decimal) (Result, error) {
	if len(series) == 0 {
		return Result{Outcome: NotEvaluable}, nil
	}
	current := series[len(series)-1]

	switch params := a.Params.(type) {
	case alarm.PriceParams:
		return evaluatePrice(params, current), nil
	case alarm.RSIParams:
		return evaluateRSI(params, series, current)
	case alarm.BollingerParams:
		return evaluateBollinger(params, series, current)
	}
	return Result{}, fmt.Errorf("alarm %d has unsupported params %T", a.ID, a.Params)
}

func evaluatePrice(p alarm.PriceParams, current decimal.Decimal) Result {
	var fired bool
	if p.Direction == alarm.DirectionAbove {
		fired = current.GreaterThanOrEqual(p.TargetPrice)
	} else {
		fired = current.LessThanOrEqual(p.TargetPrice)
	}

	result := Result{Outcome: NoFire, Price: current}
	if fired {
		result.Outcome = Fire
		result.Reason = fmt.Sprintf("price %s crossed %s target %s", current, p.Direction, p.TargetPrice)
	}
	return result
}

func evaluateRSI(p alarm.RSIParams, series []decimal.Decimal, current decimal.Decimal) (Result, error) {
	value, err := indicator.RSI(series, p.Period)
	if errors.Is(err, indicator.ErrInsufficientData) {
		return Result{Outcome: NotEvaluable, Price: current}, nil
	}
	if err != nil {
		return Result{}, err
	}

	result := Result{Outcome: NoFire, Price: current}
	// Oversold semantic only: fire on RSI at or below the threshold.
	if value <= p.Threshold {
		result.Outcome = Fire
		result.Reason = fmt.Sprintf("rsi(%d) %.2f at or below threshold %.2f", p.Period, value, p.Threshold)
	}
	return result, nil
}

func evaluateBollinger(p alarm.BollingerParams, series []decimal.Decimal, current decimal.Decimal) (Result, error) {
	bands, err := indicator.BollingerBands(series, p.Period, p.StdDev)
	if errors.Is(err, indicator.ErrInsufficientData) {
		return Result{Outcome: NotEvaluable, Price: current}, nil
	}
	if err != nil {
		return Result{}, err
	}

	result := Result{Outcome: NoFire, Price: current}
	switch {
	case current.GreaterThanOrEqual(bands.Upper):
		result.Outcome = Fire
		result.Reason = fmt.Sprintf("price %s broke above upper band %s", current, bands.Upper)
	case current.LessThanOrEqual(bands.Lower):
		result.Outcome = Fire
		result.Reason = fmt.Sprintf("price %s broke below lower band %s", current, bands.Lower)
	}
	return result, nil
}
