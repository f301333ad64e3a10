package alerting

import (
	"sync"
	"time"
)

type containmentKey struct {
	truckID    string
	geofenceID string
}

type containmentState struct {
	inside    bool
	updatedAt int64 // unix nanoseconds
}

// GeofenceStateCache remembers the last containment observation per
// (truck, geofence) and turns consecutive observations into edges.
type GeofenceStateCache struct {
	retention        time.Duration
	emitInitialEnter bool
	states           sync.Map // containmentKey -> containmentState
	now              func() time.Time
}

// NewGeofenceStateCache creates a cache that forgets pairs not observed for
// retention. With emitInitialEnter the first observation of a pair that is
// inside reports TransitionEntered instead of only setting the baseline.
func NewGeofenceStateCache(retention time.Duration, emitInitialEnter bool) *GeofenceStateCache {
	if retention <= 0 {
		retention = DefaultGeofenceRetention
	}
	return &GeofenceStateCache{
		retention:        retention,
		emitInitialEnter: emitInitialEnter,
		now:              time.Now,
	}
}

// CheckStateChange stores inside as the current state of the pair and
// reports the edge relative to the previous state. The swap is atomic, so
// concurrent observations of one pair each see a distinct predecessor.
func (c *GeofenceStateCache) CheckStateChange(truckID, geofenceID string, inside bool) Transition {
	next := containmentState{inside: inside, updatedAt: c.now().UnixNano()}
	prev, loaded := c.states.Swap(containmentKey{truckID, geofenceID}, next)
	if !loaded {
		if inside && c.emitInitialEnter {
			return TransitionEntered
		}
		return TransitionNone
	}

	was := prev.(containmentState).inside
	switch {
	case !was && inside:
		return TransitionEntered
	case was && !inside:
		return TransitionExited
	default:
		return TransitionNone
	}
}

// Inside returns the last observed state of a pair.
func (c *GeofenceStateCache) Inside(truckID, geofenceID string) (inside, known bool) {
	v, ok := c.states.Load(containmentKey{truckID, geofenceID})
	if !ok {
		return false, false
	}
	return v.(containmentState).inside, true
}

// Sweep evicts pairs not observed within the retention window and returns
// how many were removed. A pair updated during the sweep survives.
func (c *GeofenceStateCache) Sweep() int {
	cutoff := c.now().Add(-c.retention).UnixNano()
	removed := 0
	c.states.Range(func(key, value any) bool {
		if value.(containmentState).updatedAt < cutoff && c.states.CompareAndDelete(key, value) {
			removed++
		}
		return true
	})
	return removed
}

// Len returns the number of tracked pairs.
func (c *GeofenceStateCache) Len() int {
	n := 0
	c.states.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
