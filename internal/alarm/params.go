package alarm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Params is the tagged union of type-specific alarm parameters. Exactly one
// concrete variant exists per alarm type; decoding rejects keys outside the
// active variant's schema.
type Params interface {
	// Type names the alarm type the variant belongs to.
	Type() Type
	// MinSamples is the series length the evaluator needs before the
	// condition becomes evaluable.
	MinSamples() int
	// Validate checks the variant's own constraints.
	Validate() error
}

// PriceParams configures a simple level-crossing alarm.
type PriceParams struct {
	TargetPrice decimal.Decimal `json:"target_price"`
	Direction   Direction       `json:"direction"`
}

func (p PriceParams) Type() Type      { return TypePrice }
func (p PriceParams) MinSamples() int { return 1 }

func (p PriceParams) Validate() error {
	if !p.TargetPrice.IsPositive() {
		return fmt.Errorf("target_price must be greater than zero")
	}
	switch p.Direction {
	case DirectionAbove, DirectionBelow:
		return nil
	}
	return fmt.Errorf("direction must be %q or %q", DirectionAbove, DirectionBelow)
}

// RSIParams configures an oversold RSI alarm: fire when RSI falls to or
// below the threshold.
type RSIParams struct {
	Period    int     `json:"period" validate:"min=1,max=100"`
	Threshold float64 `json:"threshold" validate:"min=0,max=100"`
}

func (p RSIParams) Type() Type      { return TypeRSI }
func (p RSIParams) MinSamples() int { return p.Period + 1 }

func (p RSIParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("rsi params: %w", err)
	}
	return nil
}

// BollingerParams configures a band-breakout alarm in either direction.
type BollingerParams struct {
	Period int     `json:"period" validate:"min=1"`
	StdDev float64 `json:"std_dev" validate:"gt=0"`
}

func (p BollingerParams) Type() Type      { return TypeBollinger }
func (p BollingerParams) MinSamples() int { return p.Period }

func (p BollingerParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("bollinger params: %w", err)
	}
	return nil
}

// DecodeParams unmarshals the raw params document for the given alarm type.
// Unknown keys are rejected; a price alarm without a direction defaults to
// "above".
func DecodeParams(t Type, raw []byte) (Params, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	switch t {
	case TypePrice:
		var p PriceParams
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode price params: %w", err)
		}
		if p.Direction == "" {
			p.Direction = DirectionAbove
		}
		return p, nil
	case TypeRSI:
		var p RSIParams
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode rsi params: %w", err)
		}
		return p, nil
	case TypeBollinger:
		var p BollingerParams
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode bollinger params: %w", err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown alarm type %q", t)
}

// EncodeParams marshals the active variant for persistence.
func EncodeParams(p Params) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("params are required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", p.Type(), err)
	}
	return data, nil
}
