package alerting

import (
	"sync"
	"time"
)

// lastReport is what the presence monitor knows about one truck.
type lastReport struct {
	seenAt    time.Time
	latitude  *float64
	longitude *float64
	// alerted holds the OFFLINE rules that already fired for the current
	// silence. Cleared when the truck reports again.
	alerted map[string]struct{}
}

// OfflineTruck is a truck that has been silent past a rule's threshold.
type OfflineTruck struct {
	TruckID   string
	SeenAt    time.Time
	Latitude  *float64
	Longitude *float64
}

// PresenceMonitor records when each truck last reported so that OFFLINE
// rules can fire once per period of silence.
type PresenceMonitor struct {
	mu     sync.Mutex
	trucks map[string]*lastReport
	now    func() time.Time
}

// NewPresenceMonitor creates an empty monitor.
func NewPresenceMonitor() *PresenceMonitor {
	return &PresenceMonitor{
		trucks: make(map[string]*lastReport),
		now:    time.Now,
	}
}

// Seen marks truckID as reporting now. Coordinates are kept from the most
// recent sample that had them.
func (m *PresenceMonitor) Seen(truckID string, lat, lon *float64) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.trucks[truckID]
	if !ok {
		r = &lastReport{}
		m.trucks[truckID] = r
	}
	r.seenAt = now
	if lat != nil && lon != nil {
		la, lo := *lat, *lon
		r.latitude, r.longitude = &la, &lo
	}
	clear(r.alerted)
}

// Overdue returns the trucks silent for longer than after that have not yet
// been reported for ruleID, and marks them as reported.
func (m *PresenceMonitor) Overdue(ruleID string, after time.Duration) []OfflineTruck {
	cutoff := m.now().Add(-after)

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []OfflineTruck
	for truckID, r := range m.trucks {
		if !r.seenAt.Before(cutoff) {
			continue
		}
		if _, done := r.alerted[ruleID]; done {
			continue
		}
		if r.alerted == nil {
			r.alerted = make(map[string]struct{})
		}
		r.alerted[ruleID] = struct{}{}
		out = append(out, OfflineTruck{
			TruckID:   truckID,
			SeenAt:    r.seenAt,
			Latitude:  r.latitude,
			Longitude: r.longitude,
		})
	}
	return out
}

// Rearm forgets that ruleID fired for truckID, so the next Overdue call may
// report it again. Used when the rule could not be evaluated for the truck.
func (m *PresenceMonitor) Rearm(truckID, ruleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.trucks[truckID]; ok {
		delete(r.alerted, ruleID)
	}
}

// Forget drops trucks not seen within retention and returns how many.
func (m *PresenceMonitor) Forget(retention time.Duration) int {
	cutoff := m.now().Add(-retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for truckID, r := range m.trucks {
		if r.seenAt.Before(cutoff) {
			delete(m.trucks, truckID)
			removed++
		}
	}
	return removed
}

// Len returns the number of known trucks.
func (m *PresenceMonitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trucks)
}
