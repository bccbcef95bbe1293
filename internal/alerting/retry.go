package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// RetryNotifier retries delivery with exponential backoff before giving up.
// The wrapped notifier must tolerate repeated Notify calls for the same
// trigger.
type RetryNotifier struct {
	next     Notifier
	attempts int
	backoff  time.Duration
	logger   zerolog.Logger
}

// WithRetry wraps next with a bounded retry budget. attempts below 1 is
// treated as a single attempt.
func WithRetry(next Notifier, attempts int, backoff time.Duration, logger zerolog.Logger) *RetryNotifier {
	if attempts < 1 {
		attempts = 1
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &RetryNotifier{
		next:     next,
		attempts: attempts,
		backoff:  backoff,
		logger:   logger.With().Str("component", "alert_retry").Logger(),
	}
}

// Notify attempts delivery up to the configured budget, doubling the wait
// between attempts.
func (r *RetryNotifier) Notify(ctx context.Context, note Notification) error {
	var lastErr error
	wait := r.backoff

	for attempt := 1; attempt <= r.attempts; attempt++ {
		lastErr = r.next.Notify(ctx, note)
		if lastErr == nil {
			return nil
		}

		r.logger.Warn().Err(lastErr).
			Int64("alarm_id", note.Alarm.ID).
			Int("attempt", attempt).
			Msg("notification attempt failed")

		if attempt == r.attempts {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait *= 2
	}

	return fmt.Errorf("notify failed after %d attempts: %w", r.attempts, lastErr)
}

var _ Notifier = (*RetryNotifier)(nil)
