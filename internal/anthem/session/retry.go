package session

import (
	"context"
	"fmt"
	"log"
	"time"
)

// RetryPolicy bounds connection attempts. It belongs to the caller; the
// session itself only reports pass or fail per attempt.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy is three attempts starting at 2s and doubling.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   2 * time.Second,
	Multiplier:  2,
}

// Delay returns the wait before retry number attempt (1-based): BaseDelay
// for the first retry, multiplied for each one after.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= multiplier
	}
	return time.Duration(delay)
}

// Connector is the part of Session that ConnectWithRetry needs.
type Connector interface {
	Connect(ctx context.Context) error
	Addr() string
}

// ConnectWithRetry calls Connect until it succeeds, the policy is
// exhausted, or ctx is done. It returns the last connect error.
func ConnectWithRetry(ctx context.Context, c Connector, policy RetryPolicy, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := policy.Delay(attempt - 1)
			logger.Printf("ANTHEM: Retrying %s in %s (attempt %d/%d)", c.Addr(), delay, attempt, attempts)
			if err := sleepContext(ctx, delay); err != nil {
				return err
			}
		}
		lastErr = c.Connect(ctx)
		if lastErr == nil {
			return nil
		}
		logger.Printf("ANTHEM: Connect to %s failed (attempt %d/%d): %v", c.Addr(), attempt, attempts, lastErr)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}
