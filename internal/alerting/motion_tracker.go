package alerting

import (
	"sync"
	"time"
)

// speedSample is a single timestamped speed reading.
type speedSample struct {
	value     float64
	timestamp time.Time
}

// MotionTracker keeps a short per-truck history of reported speeds so that
// sustained conditions such as "idling for 15 minutes" can be checked.
type MotionTracker struct {
	maxAge  time.Duration
	buffers map[string][]speedSample
	mu      sync.RWMutex
}

// NewMotionTracker creates a tracker that keeps samples for maxAge.
func NewMotionTracker(maxAge time.Duration) *MotionTracker {
	if maxAge <= 0 {
		maxAge = 2 * DefaultIdleDuration
	}
	return &MotionTracker{
		maxAge:  maxAge,
		buffers: make(map[string][]speedSample),
	}
}

// Record adds a speed sample and evicts stale entries. Samples older than
// the newest one are dropped so the buffer stays in time order.
func (t *MotionTracker) Record(truckID string, speed float64, timestamp time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	samples := t.buffers[truckID]
	if n := len(samples); n > 0 && timestamp.Before(samples[n-1].timestamp) {
		return
	}
	samples = append(samples, speedSample{value: speed, timestamp: timestamp})

	// Evict by age, keeping the newest sample at or before the cutoff as the
	// anchor of a full maxAge window.
	cutoff := timestamp.Add(-t.maxAge)
	start := 0
	for start+1 < len(samples) && !samples[start+1].timestamp.After(cutoff) {
		start++
	}
	samples = samples[start:]

	t.buffers[truckID] = samples
}

// IsSustained checks whether the condition has held for every sample in the
// last duration, and that the history actually covers that duration.
func (t *MotionTracker) IsSustained(truckID, operator string, threshold float64, duration time.Duration, now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	samples := t.buffers[truckID]
	if len(samples) == 0 {
		return false
	}

	windowStart := now.Add(-duration)

	// The newest sample at or before the window start proves the condition
	// already held when the window opened. Without one the history is too
	// short to judge.
	first := -1
	for i, s := range samples {
		if s.timestamp.After(windowStart) {
			break
		}
		first = i
	}
	if first < 0 {
		return false
	}

	for _, s := range samples[first:] {
		if s.timestamp.After(now) {
			break
		}
		if !compareFloat(s.value, operator, threshold) {
			return false
		}
	}
	return true
}

// Forget drops trucks whose newest sample is older than cutoff and returns
// how many were removed.
func (t *MotionTracker) Forget(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for truckID, samples := range t.buffers {
		if len(samples) == 0 || samples[len(samples)-1].timestamp.Before(cutoff) {
			delete(t.buffers, truckID)
			removed++
		}
	}
	return removed
}

// Len returns the number of trucks with a speed history.
func (t *MotionTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.buffers)
}

func compareFloat(value float64, operator string, threshold float64) bool {
	switch operator {
	case OperatorGreaterThan:
		return value > threshold
	case OperatorLessThan:
		return value < threshold
	case OperatorGreaterOrEqual:
		return value >= threshold
	case OperatorLessOrEqual:
		return value <= threshold
	default:
		return false
	}
}
