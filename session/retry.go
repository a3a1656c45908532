package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"game-companion/llm"
)

// streamWithRetry starts a stream, retrying transient network failures with
// exponential backoff (1s, 2s, 4s...). Quota errors are never retried.
func (c *Controller) streamWithRetry(ctx context.Context, messages []llm.Message) (<-chan llm.StreamResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := c.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
			c.logger.Info("Retrying in %v (attempt %d/%d)...", wait, attempt, c.opts.MaxRetries)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		stream, err := c.deps.Provider.StreamChat(ctx, messages)
		if err == nil {
			if attempt > 0 {
				c.logger.Info("Retry successful on attempt %d", attempt+1)
			}
			return stream, nil
		}

		lastErr = err
		c.logger.Warn("Stream chat attempt %d failed: %v", attempt+1, err)

		if !isRetryableError(err) {
			break
		}
	}

	if c.opts.MaxRetries == 0 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", c.opts.MaxRetries+1, lastErr)
}

// isRetryableError checks if an error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil || llm.IsQuotaError(err) {
		return false
	}

	errStr := strings.ToLower(err.Error())

	retryableErrors := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"network",
		"dial tcp",
		"i/o timeout",
		"no such host",
		"connection timed out",
		"eof",
	}

	for _, retryable := range retryableErrors {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}

	return false
}
