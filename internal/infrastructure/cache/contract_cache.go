// Package cache implements the Redis caches in front of the contract
// endpoints and the metadata download pipeline.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/safeutils/safe-decoder-service/shared/redis"
)

// allowedParams is the set of query parameters that participate in a cache
// field key. Unknown parameters are ignored so they cannot be used to bust
// the cache.
var allowedParams = map[string]bool{
	"limit":     true,
	"offset":    true,
	"chain_ids": true,
}

// commandRunner is the slice of the shared redis wrapper the caches use.
type commandRunner interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, expiration time.Duration) error
	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key, field, value string) error
	ExpireNX(ctx context.Context, key string, expiration time.Duration) error
	Unlink(ctx context.Context, keys ...string) error
}

// ContractCache caches rendered contract responses in a Redis hash per
// contract address, so invalidation can drop every cached variant of one
// contract with a single key deletion.
type ContractCache struct {
	redis commandRunner
	ttl   time.Duration
}

// NewContractCache creates a contract response cache with the given entry
// lifetime.
func NewContractCache(r *redis.Redis, ttl time.Duration) *ContractCache {
	return &ContractCache{redis: r, ttl: ttl}
}

// ContractKey returns the Redis hash key for a contract address. Addresses
// are lowercased so checksum and non-checksum spellings share one entry.
func ContractKey(address string) string {
	return "contract:" + strings.ToLower(address)
}

// FieldKey derives the hash field for a request from its path and the
// allow-listed query parameters, sorted by name.
func FieldKey(path string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if allowedParams[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(path)
	for _, k := range keys {
		fmt.Fprintf(&b, "&%s=%s", k, params[k])
	}
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached response body for the request, or "" on a miss.
func (c *ContractCache) Get(ctx context.Context, address, path string, params map[string]string) (string, error) {
	value, err := c.redis.HGet(ctx, ContractKey(address), FieldKey(path, params))
	if redis.IsNil(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("contract cache get: %w", err)
	}
	return value, nil
}

// Set stores a rendered response body. The hash TTL is only set when the
// key has no expiry yet, so a busy contract does not live forever through
// refreshes.
func (c *ContractCache) Set(ctx context.Context, address, path string, params map[string]string, body string) error {
	key := ContractKey(address)
	if err := c.redis.HSet(ctx, key, FieldKey(path, params), body); err != nil {
		return fmt.Errorf("contract cache set: %w", err)
	}
	if err := c.redis.ExpireNX(ctx, key, c.ttl); err != nil {
		return fmt.Errorf("contract cache expire: %w", err)
	}
	return nil
}

// Invalidate drops every cached response for the address.
func (c *ContractCache) Invalidate(ctx context.Context, address string) error {
	if err := c.redis.Unlink(ctx, ContractKey(address)); err != nil {
		return fmt.Errorf("contract cache invalidate: %w", err)
	}
	return nil
}
