// Package retry provides a small fixed-delay retry helper for outbound
// calls that fail transiently.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Do runs fn up to maxAttempts times, sleeping delay between attempts.
// It stops early when the context is cancelled.
func Do(ctx context.Context, logger *slog.Logger, maxAttempts int, delay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err
			logger.Warn("attempt failed", "attempt", attempt, "max_attempts", maxAttempts, "error", err)
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}
