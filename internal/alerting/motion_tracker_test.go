package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMotionTracker_ImmediateCheck(t *testing.T) {
	tracker := NewMotionTracker(time.Hour)
	now := time.Now()

	// Single sample with zero duration is judged on its own.
	tracker.Record("T1", 0, now)
	assert.True(t, tracker.IsSustained("T1", OperatorLessOrEqual, 3, 0, now))
}

func TestMotionTracker_SustainedIdle(t *testing.T) {
	tracker := NewMotionTracker(time.Hour)
	base := time.Now().Add(-30 * time.Minute)

	for i := range 16 {
		tracker.Record("T1", 1.5, base.Add(time.Duration(i)*time.Minute))
	}

	now := base.Add(15 * time.Minute)
	assert.True(t, tracker.IsSustained("T1", OperatorLessOrEqual, 3, 15*time.Minute, now))
	assert.False(t, tracker.IsSustained("T1", OperatorLessOrEqual, 3, 20*time.Minute, now),
		"history does not cover 20 minutes")
}

func TestMotionTracker_MovementInsideWindow(t *testing.T) {
	tracker := NewMotionTracker(time.Hour)
	base := time.Now().Add(-10 * time.Minute)

	tracker.Record("T1", 0, base)
	tracker.Record("T1", 0, base.Add(1*time.Minute))
	tracker.Record("T1", 40, base.Add(2*time.Minute)) // moved
	tracker.Record("T1", 0, base.Add(3*time.Minute))
	tracker.Record("T1", 0, base.Add(4*time.Minute))
	tracker.Record("T1", 0, base.Add(5*time.Minute))

	now := base.Add(5 * time.Minute)
	assert.False(t, tracker.IsSustained("T1", OperatorLessOrEqual, 3, 5*time.Minute, now),
		"movement within the window breaks the idle streak")
}

func TestMotionTracker_RecoverAfterMovement(t *testing.T) {
	tracker := NewMotionTracker(time.Hour)
	base := time.Now().Add(-15 * time.Minute)

	tracker.Record("T1", 0, base)
	tracker.Record("T1", 60, base.Add(1*time.Minute))
	for i := 5; i <= 12; i++ {
		tracker.Record("T1", 0, base.Add(time.Duration(i)*time.Minute))
	}

	now := base.Add(12 * time.Minute)
	assert.True(t, tracker.IsSustained("T1", OperatorLessOrEqual, 3, 5*time.Minute, now))
}

func TestMotionTracker_RequiresFullHistory(t *testing.T) {
	tracker := NewMotionTracker(time.Hour)
	now := time.Now()

	// Sparse reports are fine as long as one predates the window.
	tracker.Record("T1", 0, now.Add(-16*time.Minute))
	tracker.Record("T1", 0, now)
	assert.True(t, tracker.IsSustained("T1", OperatorLessOrEqual, 3, 15*time.Minute, now))

	tracker.Record("T2", 0, now.Add(-13*time.Minute))
	tracker.Record("T2", 0, now)
	assert.False(t, tracker.IsSustained("T2", OperatorLessOrEqual, 3, 15*time.Minute, now))
}

func TestMotionTracker_TrucksAreIndependent(t *testing.T) {
	tracker := NewMotionTracker(time.Hour)
	now := time.Now()

	tracker.Record("T1", 0, now)
	tracker.Record("T2", 80, now)

	assert.True(t, tracker.IsSustained("T1", OperatorLessOrEqual, 3, 0, now))
	assert.False(t, tracker.IsSustained("T2", OperatorLessOrEqual, 3, 0, now))
	assert.True(t, tracker.IsSustained("T2", OperatorGreaterThan, 70, 0, now))
}

func TestMotionTracker_NoSamples(t *testing.T) {
	tracker := NewMotionTracker(time.Hour)
	assert.False(t, tracker.IsSustained("T1", OperatorLessOrEqual, 3, 5*time.Minute, time.Now()))
}

func TestMotionTracker_OldSamplesEvicted(t *testing.T) {
	maxAge := 30 * time.Minute
	tracker := NewMotionTracker(maxAge)
	now := time.Now()

	tracker.Record("T1", 0, now.Add(-maxAge-20*time.Minute))
	tracker.Record("T1", 0, now.Add(-maxAge-time.Minute))
	tracker.Record("T1", 0, now)

	// The newest sample before the cutoff stays as the window anchor.
	assert.Len(t, tracker.buffers["T1"], 2)
	assert.True(t, tracker.IsSustained("T1", OperatorLessOrEqual, 3, maxAge, now))
	assert.False(t, tracker.IsSustained("T1", OperatorLessOrEqual, 3, maxAge+10*time.Minute, now))
}

func TestMotionTracker_DenseSamplesKeepWindow(t *testing.T) {
	maxAge := 20 * time.Minute
	tracker := NewMotionTracker(maxAge)
	base := time.Now().Add(-time.Hour)

	// One report per second for 30 minutes.
	var now time.Time
	for i := range 1800 {
		now = base.Add(time.Duration(i) * time.Second)
		tracker.Record("T1", 0, now)
	}

	assert.True(t, tracker.IsSustained("T1", OperatorLessOrEqual, 3, 10*time.Minute, now))
	assert.True(t, tracker.IsSustained("T1", OperatorLessOrEqual, 3, maxAge, now))
	assert.LessOrEqual(t, len(tracker.buffers["T1"]), int(maxAge/time.Second)+1, "evicted by age")
}

func TestMotionTracker_IgnoresOutOfOrderSamples(t *testing.T) {
	tracker := NewMotionTracker(time.Hour)
	now := time.Now()

	tracker.Record("T1", 0, now.Add(-10*time.Minute))
	tracker.Record("T1", 0, now)
	tracker.Record("T1", 90, now.Add(-5*time.Minute)) // late delivery

	assert.True(t, tracker.IsSustained("T1", OperatorLessOrEqual, 3, 10*time.Minute, now))
}

func TestMotionTracker_UnknownOperator(t *testing.T) {
	tracker := NewMotionTracker(time.Hour)
	now := time.Now()

	tracker.Record("T1", 0, now)
	assert.False(t, tracker.IsSustained("T1", "roughly", 3, 0, now))
}

func TestMotionTracker_Forget(t *testing.T) {
	tracker := NewMotionTracker(time.Hour)
	now := time.Now()

	tracker.Record("stale", 0, now.Add(-2*time.Hour))
	tracker.Record("fresh", 0, now)

	assert.Equal(t, 1, tracker.Forget(now.Add(-time.Hour)))
	assert.Equal(t, 1, tracker.Len())
}
