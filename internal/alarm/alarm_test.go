package alarm

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestDecodePriceParamsDefaultsDirection(t *testing.T) {
	p, err := DecodeParams(TypePrice, []byte(`{"target_price": 50000}`))
	if err != nil {
		t.Fatalf("decode should succeed: %v", err)
	}
	price, ok := p.(PriceParams)
	if !ok {
		t.Fatalf("expected PriceParams, got %T", p)
	}
	if price.Direction != DirectionAbove {
		t.Fatalf("direction should default to above, got %s", price.Direction)
	}
	if !price.TargetPrice.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("unexpected target price %s", price.TargetPrice)
	}
	if err := price.Validate(); err != nil {
		t.Fatalf("params should validate: %v", err)
	}
}

func TestDecodeParamsRejectsUnknownKeys(t *testing.T) {
	cases := map[Type]string{
		TypePrice:     `{"target_price": 1, "period": 14}`,
		TypeRSI:       `{"period": 14, "threshold": 30, "target_price": 1}`,
		TypeBollinger: `{"period": 20, "std_dev": 2, "threshold": 30}`,
	}
	for typ, raw := range cases {
		if _, err := DecodeParams(typ, []byte(raw)); err == nil {
			t.Fatalf("%s params with foreign key should be rejected", typ)
		}
	}
}

func TestParamsValidation(t *testing.T) {
	cases := []struct {
		name   string
		params Params
		ok     bool
	}{
		{"price negative target", PriceParams{TargetPrice: decimal.NewFromInt(-1), Direction: DirectionAbove}, false},
		{"price zero target", PriceParams{TargetPrice: decimal.Zero, Direction: DirectionBelow}, false},
		{"price bad direction", PriceParams{TargetPrice: decimal.NewFromInt(1), Direction: "sideways"}, false},
		{"price ok", PriceParams{TargetPrice: decimal.NewFromFloat(49999.99), Direction: DirectionBelow}, true},
		{"rsi period too small", RSIParams{Period: 0, Threshold: 30}, false},
		{"rsi period too large", RSIParams{Period: 101, Threshold: 30}, false},
		{"rsi threshold above 100", RSIParams{Period: 14, Threshold: 100.5}, false},
		{"rsi ok", RSIParams{Period: 14, Threshold: 30}, true},
		{"bollinger zero std dev", BollingerParams{Period: 20, StdDev: 0}, false},
		{"bollinger zero period", BollingerParams{Period: 0, StdDev: 2}, false},
		{"bollinger ok", BollingerParams{Period: 20, StdDev: 2}, true},
	}

	for _, tc := range cases {
		err := tc.params.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: expected valid, got %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestAlarmValidate(t *testing.T) {
	base := Alarm{
		AssetClass:  AssetCrypto,
		AssetSymbol: "BTC-USD",
		Type:        TypePrice,
		Params:      PriceParams{TargetPrice: decimal.NewFromInt(50000), Direction: DirectionAbove},
		Email:       "user@example.com",
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid alarm rejected: %v", err)
	}

	badSymbol := base
	badSymbol.AssetSymbol = "BTC USD"
	if err := badSymbol.Validate(); err == nil {
		t.Fatal("symbol with space should be rejected")
	}

	forex := base
	forex.AssetClass = AssetForex
	forex.AssetSymbol = "EUR/USD"
	if err := forex.Validate(); err != nil {
		t.Fatalf("EUR/USD should be a valid forex symbol: %v", err)
	}
	forex.AssetSymbol = "EURUSD"
	if err := forex.Validate(); err == nil {
		t.Fatal("forex symbol without slash should be rejected")
	}

	badEmail := base
	badEmail.Email = "not-an-address"
	if err := badEmail.Validate(); err == nil {
		t.Fatal("malformed email should be rejected")
	}

	mismatch := base
	mismatch.Type = TypeRSI
	if err := mismatch.Validate(); err == nil {
		t.Fatal("params/type mismatch should be rejected")
	}
}
