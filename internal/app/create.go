package app

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"financial-alarms/internal/alarm"
)

// CreateOptions hold the raw command-line inputs for registering an alarm.
type CreateOptions struct {
	AssetClass  string
	AssetSymbol string
	Type        string
	Email       string

	// Price alarm.
	TargetPrice string
	Direction   string

	// RSI alarm.
	Period    int
	Threshold float64

	// Bollinger alarm.
	StdDev float64
}

// CreateAlarm validates the inputs and registers a new pending alarm.
func (a *App) CreateAlarm(ctx context.Context, opts CreateOptions) error {
	class, err := alarm.ParseAssetClass(opts.AssetClass)
	if err != nil {
		return err
	}
	alarmType, err := alarm.ParseType(opts.Type)
	if err != nil {
		return err
	}

	params, err := buildParams(alarmType, opts)
	if err != nil {
		return err
	}

	candidate := alarm.Alarm{
		AssetClass:  class,
		AssetSymbol: opts.AssetSymbol,
		Type:        alarmType,
		Params:      params,
		Email:       opts.Email,
		Status:      alarm.StatusPending,
	}
	if err := candidate.Validate(); err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	id, err := store.InsertAlarm(ctx, candidate)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Int64("alarm_id", id).
		Str("symbol", candidate.AssetSymbol).
		Str("alarm_type", string(candidate.Type)).
		Msg("alarm registered")
	fmt.Fprintf(os.Stdout, "alarm %d registered\n", id)
	return nil
}

func buildParams(t alarm.Type, opts CreateOptions) (alarm.Params, error) {
	switch t {
	case alarm.TypePrice:
		target, err := decimal.NewFromString(opts.TargetPrice)
		if err != nil {
			return nil, fmt.Errorf("invalid --target-price %q: %w", opts.TargetPrice, err)
		}
		direction := alarm.Direction(opts.Direction)
		if direction == "" {
			direction = alarm.DirectionAbove
		}
		return alarm.PriceParams{TargetPrice: target, Direction: direction}, nil

	case alarm.TypeRSI:
		return alarm.RSIParams{Period: opts.Period, Threshold: opts.Threshold}, nil

	case alarm.TypeBollinger:
		return alarm.BollingerParams{Period: opts.Period, StdDev: opts.StdDev}, nil
	}
	return nil, fmt.Errorf("unknown alarm type %q", t)
}
