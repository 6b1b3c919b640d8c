package cache

import (
	"context"
	"fmt"

	"github.com/safeutils/safe-decoder-service/shared/redis"
)

// AttemptCache remembers contracts whose metadata download has been given
// up on, so repeated events for a dead contract do not keep hitting the
// providers. Entries carry no TTL; a successful download or a manual
// request with the skip flag bypasses them.
type AttemptCache struct {
	redis commandRunner
}

// NewAttemptCache creates a download attempt gate.
func NewAttemptCache(r *redis.Redis) *AttemptCache {
	return &AttemptCache{redis: r}
}

func attemptKey(address string, chainID int64, maxRetries int) string {
	return fmt.Sprintf("should_attempt_download:%s:%d:%d", address, chainID, maxRetries)
}

// ShouldAttempt reports whether a download for the contract should still
// be tried under the given retry budget.
func (c *AttemptCache) ShouldAttempt(ctx context.Context, address string, chainID int64, maxRetries int) (bool, error) {
	value, err := c.redis.Get(ctx, attemptKey(address, chainID, maxRetries))
	if redis.IsNil(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("attempt cache get: %w", err)
	}
	return value != "0", nil
}

// MarkExhausted records that the retry budget for the contract is spent.
func (c *AttemptCache) MarkExhausted(ctx context.Context, address string, chainID int64, maxRetries int) error {
	if err := c.redis.Set(ctx, attemptKey(address, chainID, maxRetries), "0", 0); err != nil {
		return fmt.Errorf("attempt cache set: %w", err)
	}
	return nil
}
