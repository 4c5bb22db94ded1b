// Package cache is the explicit key-value cache used for AI responses and
// translations. Storage is injected: Memory for tests and single-process
// runs, Redis or the Postgres ai_cache table in production.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Backend stores string values with an explicit TTL.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Key hashes parts into a stable cache key under namespace.
func Key(namespace string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(parts, "\x00")))
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

// GetJSON reads and decodes a JSON value.
func GetJSON[T any](ctx context.Context, b Backend, key string) (T, bool, error) {
	var v T
	raw, ok, err := b.Get(ctx, key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return v, true, nil
}

// SetJSON encodes v as JSON and stores it.
func SetJSON(ctx context.Context, b Backend, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return b.Set(ctx, key, string(raw), ttl)
}
