package alarm

import (
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
)

// AssetClass partitions instruments by market.
type AssetClass string

const (
	AssetCrypto AssetClass = "crypto"
	AssetForex  AssetClass = "forex"
	AssetStock  AssetClass = "stock"
)

// Type selects the condition evaluator branch.
type Type string

const (
	TypePrice     Type = "price"
	TypeRSI       Type = "rsi"
	TypeBollinger Type = "bollinger"
)

// Status is the alarm lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusTriggered Status = "triggered"
	StatusFailed    Status = "failed"
	// StatusDeleted is terminal retirement. Rows never rest in it:
	// retirement is a physical delete, the value exists for display only.
	StatusDeleted Status = "deleted"
)

// Direction orients a price alarm relative to its target.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// Alarm is the unit of work: one instrument, one condition, one recipient.
// Type and Params are fixed at creation and never mutated afterwards.
type Alarm struct {
	ID          int64
	AssetClass  AssetClass
	AssetSymbol string
	Type        Type
	Params      Params
	Email       string
	Status      Status
	LastCheckAt *time.Time
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

var validate = validator.New()

// Symbol syntax per asset class. Letters, digits, '-' and '/' only.
var symbolPatterns = map[AssetClass]*regexp.Regexp{
	AssetCrypto: regexp.MustCompile(`^[A-Za-z0-9]+(-[A-Za-z0-9]+)?$`),
	AssetForex:  regexp.MustCompile(`^[A-Za-z0-9]+/[A-Za-z0-9]+$`),
	AssetStock:  regexp.MustCompile(`^[A-Za-z0-9-]+$`),
}

// ParseAssetClass validates a raw asset class value.
func ParseAssetClass(raw string) (AssetClass, error) {
	switch AssetClass(raw) {
	case AssetCrypto, AssetForex, AssetStock:
		return AssetClass(raw), nil
	}
	return "", fmt.Errorf("unknown asset class %q", raw)
}

// ParseType validates a raw alarm type value.
func ParseType(raw string) (Type, error) {
	switch Type(raw) {
	case TypePrice, TypeRSI, TypeBollinger:
		return Type(raw), nil
	}
	return "", fmt.Errorf("unknown alarm type %q", raw)
}

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusPending, StatusTriggered, StatusFailed, StatusDeleted:
		return Status(raw), nil
	}
	return "", fmt.Errorf("unknown alarm status %q", raw)
}

// Validate checks the alarm against its creation constraints.
func (a *Alarm) Validate() error {
	if _, err := ParseAssetClass(string(a.AssetClass)); err != nil {
		return err
	}
	if _, err := ParseType(string(a.Type)); err != nil {
		return err
	}
	if a.AssetSymbol == "" {
		return fmt.Errorf("asset symbol is required")
	}
	if pattern := symbolPatterns[a.AssetClass]; !pattern.MatchString(a.AssetSymbol) {
		return fmt.Errorf("symbol %q is not valid for asset class %s", a.AssetSymbol, a.AssetClass)
	}
	if err := validate.Var(a.Email, "required,email"); err != nil {
		return fmt.Errorf("email %q is not a valid address", a.Email)
	}
	if a.Params == nil {
		return fmt.Errorf("params are required")
	}
	if a.Params.Type() != a.Type {
		return fmt.Errorf("params of type %s do not match alarm type %s", a.Params.Type(), a.Type)
	}
	return a.Params.Validate()
}
