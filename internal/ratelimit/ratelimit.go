package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBudgetExhausted is returned by Use when a provider or the total budget
// is spent.
var ErrBudgetExhausted = errors.New("ai request budget exhausted")

// Budget limits AI requests per provider and in total. A zero limit means
// unlimited. With a positive window the counters reset after it elapses;
// otherwise the budget lasts for the lifetime of the value (one run).
type Budget struct {
	mu          sync.Mutex
	limits      map[string]int
	used        map[string]int
	maxTotal    int
	totalCount  int
	cacheHits   int
	cacheMisses int
	window      time.Duration
	resetTime   time.Time
	now         func() time.Time
}

func NewBudget(limits map[string]int, maxTotal int, window time.Duration) *Budget {
	b := &Budget{
		limits:   make(map[string]int, len(limits)),
		used:     make(map[string]int),
		maxTotal: maxTotal,
		window:   window,
		now:      time.Now,
	}
	for k, v := range limits {
		b.limits[k] = v
	}
	if window > 0 {
		b.resetTime = b.now().Add(window)
	}
	return b
}

// Allow reports whether provider may make one more request.
func (b *Budget) Allow(provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkReset()
	return b.allowLocked(provider) == nil
}

// Use records one request for provider or returns ErrBudgetExhausted.
func (b *Budget) Use(provider string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkReset()

	if err := b.allowLocked(provider); err != nil {
		return err
	}
	b.used[provider]++
	b.totalCount++
	b.cacheMisses++
	return nil
}

func (b *Budget) allowLocked(provider string) error {
	if limit := b.limits[provider]; limit > 0 && b.used[provider] >= limit {
		return fmt.Errorf("%s %d/%d: %w", provider, b.used[provider], limit, ErrBudgetExhausted)
	}
	if b.maxTotal > 0 && b.totalCount >= b.maxTotal {
		return fmt.Errorf("total %d/%d: %w", b.totalCount, b.maxTotal, ErrBudgetExhausted)
	}
	return nil
}

// RecordCacheHit records a request answered from cache.
func (b *Budget) RecordCacheHit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cacheHits++
}

// CacheHitRate returns cache hit rate percentage
func (b *Budget) CacheHitRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hitRateLocked()
}

func (b *Budget) hitRateLocked() float64 {
	total := b.cacheHits + b.cacheMisses
	if total == 0 {
		return 0
	}
	return float64(b.cacheHits) / float64(total) * 100
}

// Stats returns current usage for logging and /metrics.
func (b *Budget) Stats() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := map[string]any{
		"total_used":     b.totalCount,
		"total_limit":    b.maxTotal,
		"cache_hits":     b.cacheHits,
		"cache_misses":   b.cacheMisses,
		"cache_hit_rate": b.hitRateLocked(),
	}
	for p, limit := range b.limits {
		stats[p+"_limit"] = limit
		stats[p+"_used"] = b.used[p]
	}
	for p, n := range b.used {
		stats[p+"_used"] = n
	}
	return stats
}

// Reset clears all counters. Long-running processes call it at the start
// of every ingestion run.
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

// checkReset resets counters if reset time has passed
func (b *Budget) checkReset() {
	if b.window <= 0 || !b.now().After(b.resetTime) {
		return
	}
	b.resetLocked()
}

func (b *Budget) resetLocked() {
	b.used = make(map[string]int)
	b.totalCount = 0
	b.cacheHits = 0
	b.cacheMisses = 0
	if b.window > 0 {
		b.resetTime = b.now().Add(b.window)
	}
}
