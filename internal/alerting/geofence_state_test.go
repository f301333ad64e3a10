package alerting

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestGeofenceStates(retention time.Duration, emitInitialEnter bool) (*GeofenceStateCache, *fakeClock) {
	clock := newFakeClock()
	c := NewGeofenceStateCache(retention, emitInitialEnter)
	c.now = clock.Now
	return c, clock
}

func TestGeofenceStateCache_EdgeSequence(t *testing.T) {
	c, _ := newTestGeofenceStates(time.Hour, false)

	observations := []bool{false, true, true, false, true}
	want := []Transition{TransitionNone, TransitionEntered, TransitionNone, TransitionExited, TransitionEntered}

	for i, inside := range observations {
		assert.Equal(t, want[i], c.CheckStateChange("T1", "G1", inside), "observation %d", i)
	}
}

func TestGeofenceStateCache_FirstObservationIsBaseline(t *testing.T) {
	c, _ := newTestGeofenceStates(time.Hour, false)

	assert.Equal(t, TransitionNone, c.CheckStateChange("T1", "G1", true))
	inside, known := c.Inside("T1", "G1")
	assert.True(t, known)
	assert.True(t, inside, "baseline is stored")

	// Staying inside never reports an edge.
	for range 5 {
		assert.Equal(t, TransitionNone, c.CheckStateChange("T1", "G1", true))
	}
	assert.Equal(t, TransitionExited, c.CheckStateChange("T1", "G1", false))
}

func TestGeofenceStateCache_EmitInitialEnter(t *testing.T) {
	c, _ := newTestGeofenceStates(time.Hour, true)

	assert.Equal(t, TransitionEntered, c.CheckStateChange("T1", "G1", true))
	assert.Equal(t, TransitionNone, c.CheckStateChange("T2", "G1", false), "initial outside is still a baseline")
	assert.Equal(t, TransitionNone, c.CheckStateChange("T1", "G1", true))
}

func TestGeofenceStateCache_PairsAreIndependent(t *testing.T) {
	c, _ := newTestGeofenceStates(time.Hour, false)

	c.CheckStateChange("T1", "G1", false)
	c.CheckStateChange("T1", "G2", true)
	c.CheckStateChange("T2", "G1", true)

	assert.Equal(t, TransitionEntered, c.CheckStateChange("T1", "G1", true))
	assert.Equal(t, TransitionExited, c.CheckStateChange("T1", "G2", false))
	assert.Equal(t, TransitionNone, c.CheckStateChange("T2", "G1", true))
	assert.Equal(t, 3, c.Len())
}

func TestGeofenceStateCache_Sweep(t *testing.T) {
	c, clock := newTestGeofenceStates(time.Hour, false)

	c.CheckStateChange("stale", "G1", true)
	clock.Advance(50 * time.Minute)
	c.CheckStateChange("fresh", "G1", true)
	clock.Advance(20 * time.Minute)

	assert.Equal(t, 1, c.Sweep())
	_, known := c.Inside("stale", "G1")
	assert.False(t, known)
	_, known = c.Inside("fresh", "G1")
	assert.True(t, known)

	// An evicted pair starts over with a baseline.
	assert.Equal(t, TransitionNone, c.CheckStateChange("stale", "G1", true))
}

func TestGeofenceStateCache_ConcurrentEdgesCountedOnce(t *testing.T) {
	c, _ := newTestGeofenceStates(time.Hour, false)
	c.CheckStateChange("T1", "G1", false)

	var entered atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for range 32 {
		wg.Go(func() {
			<-start
			if c.CheckStateChange("T1", "G1", true) == TransitionEntered {
				entered.Add(1)
			}
		})
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), entered.Load())
}

func TestTransition_String(t *testing.T) {
	assert.Equal(t, "ENTERED", TransitionEntered.String())
	assert.Equal(t, "EXITED", TransitionExited.String())
	assert.Equal(t, "NONE", TransitionNone.String())
}
