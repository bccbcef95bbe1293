package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"financial-alarms/internal/alarm"
)

// Notification 封装一次触发告警的上下文。
type Notification struct {
	Alarm       alarm.Alarm
	Price       decimal.Decimal
	Reason      string
	TriggeredAt time.Time
}

// Notifier delivers a triggered-alarm notification. Implementations must be
// safe to retry: callers may invoke Notify more than once for the same
// logical trigger within the retry budget.
type Notifier interface {
	Notify(ctx context.Context, note Notification) error
}

// Subject builds the alert subject line.
func Subject(note Notification) string {
	return fmt.Sprintf("Financial Alarm Triggered: %s", note.Alarm.AssetSymbol)
}

// Body renders the plain-text alert body.
func Body(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("Your financial alarm has been triggered!\n\n")
	builder.WriteString(fmt.Sprintf("Asset: %s (%s)\n", note.Alarm.AssetSymbol, note.Alarm.AssetClass))
	builder.WriteString(fmt.Sprintf("Alarm Type: %s\n", note.Alarm.Type))
	builder.WriteString(fmt.Sprintf("Current Price: %s\n", note.Price))
	if note.Reason != "" {
		builder.WriteString(fmt.Sprintf("Condition: %s\n", note.Reason))
	}
	builder.WriteString(fmt.Sprintf("Time (UTC): %s\n", note.TriggeredAt.UTC().Format(time.RFC3339)))
	builder.WriteString("\nThis alarm was one-shot and has been retired.\n")
	return builder.String()
}
