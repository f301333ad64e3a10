package alerting

import (
	"context"
	"sync"
	"time"
)

// Gate decides whether an alert for (truck, rule) may be emitted now and, if
// so, records it. Implementations must make the decision and the record one
// atomic step.
type Gate interface {
	CheckAndRecord(ctx context.Context, truckID, ruleID string) bool
}

type cooldownKey struct {
	truckID string
	ruleID  string
}

// CooldownCache rate-limits alerts per (truck, rule) in process memory.
// Entries hold the last alert time in unix nanoseconds; all updates go
// through compare-and-swap so that no lock is shared between keys.
type CooldownCache struct {
	window  time.Duration
	entries sync.Map // cooldownKey -> int64
	now     func() time.Time
}

// NewCooldownCache creates a cache with the given cooldown window.
func NewCooldownCache(window time.Duration) *CooldownCache {
	if window <= 0 {
		window = DefaultCooldown
	}
	return &CooldownCache{window: window, now: time.Now}
}

// Window returns the cooldown duration.
func (c *CooldownCache) Window() time.Duration {
	return c.window
}

// CheckAndRecord implements Gate. It returns true, and records now as the
// last alert time, when no entry exists or the entry is at least one window
// old. Concurrent callers with the same key see exactly one true per window.
func (c *CooldownCache) CheckAndRecord(_ context.Context, truckID, ruleID string) bool {
	key := cooldownKey{truckID, ruleID}
	now := c.now().UnixNano()
	for {
		prev, loaded := c.entries.LoadOrStore(key, now)
		if !loaded {
			return true
		}
		last := prev.(int64)
		if now-last < int64(c.window) {
			return false
		}
		if c.entries.CompareAndSwap(key, last, now) {
			return true
		}
		// Another caller won the race; re-read its record.
	}
}

// CanTriggerAlert reports whether an alert would currently pass the gate.
// Not atomic with RecordAlert; use CheckAndRecord on the alert path.
func (c *CooldownCache) CanTriggerAlert(truckID, ruleID string) bool {
	v, ok := c.entries.Load(cooldownKey{truckID, ruleID})
	if !ok {
		return true
	}
	return c.now().UnixNano()-v.(int64) >= int64(c.window)
}

// RecordAlert unconditionally stores now as the last alert time.
func (c *CooldownCache) RecordAlert(truckID, ruleID string) {
	c.entries.Store(cooldownKey{truckID, ruleID}, c.now().UnixNano())
}

// RemainingCooldownSeconds returns max(0, window - elapsed) in whole seconds,
// rounded up so that it is zero exactly when the gate opens.
func (c *CooldownCache) RemainingCooldownSeconds(truckID, ruleID string) int64 {
	v, ok := c.entries.Load(cooldownKey{truckID, ruleID})
	if !ok {
		return 0
	}
	remaining := c.window - time.Duration(c.now().UnixNano()-v.(int64))
	if remaining <= 0 {
		return 0
	}
	return int64((remaining + time.Second - 1) / time.Second)
}

// CleanupExpiredEntries removes entries older than twice the window and
// returns how many were removed. An entry refreshed after it was read is
// left alone.
func (c *CooldownCache) CleanupExpiredEntries() int {
	cutoff := c.now().Add(-2 * c.window).UnixNano()
	removed := 0
	c.entries.Range(func(key, value any) bool {
		if value.(int64) < cutoff && c.entries.CompareAndDelete(key, value) {
			removed++
		}
		return true
	})
	return removed
}

// Len returns the number of tracked (truck, rule) pairs.
func (c *CooldownCache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
