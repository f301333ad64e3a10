package alerting

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truckwatch/fleet-alerts/internal/datastore/entities"
	"github.com/truckwatch/fleet-alerts/internal/datastore/repository"
	"github.com/truckwatch/fleet-alerts/internal/errors"
	"github.com/truckwatch/fleet-alerts/internal/geofence"
	"github.com/truckwatch/fleet-alerts/internal/logger"
	"github.com/truckwatch/fleet-alerts/internal/telemetry"
)

// mockRuleStore is a minimal in-memory RuleStore.
type mockRuleStore struct {
	mu    sync.Mutex
	rules []entities.AlertRule
	err   error
	calls atomic.Int32
}

func (m *mockRuleStore) GetEnabledRules(_ context.Context) ([]entities.AlertRule, error) {
	m.calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []entities.AlertRule
	for i := range m.rules {
		if m.rules[i].Enabled {
			out = append(out, m.rules[i])
		}
	}
	return out, nil
}

func (m *mockRuleStore) GetRule(_ context.Context, id string) (*entities.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == id {
			return &m.rules[i], nil
		}
	}
	return nil, repository.ErrRuleNotFound
}

func (m *mockRuleStore) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// recordingPublisher keeps every published alert.
type recordingPublisher struct {
	mu     sync.Mutex
	events []AlertEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event *AlertEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
}

func (p *recordingPublisher) published() []AlertEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]AlertEvent(nil), p.events...)
}

// mockDirectory is an in-memory repository.Directory.
type mockDirectory struct {
	groups     map[string][]string
	recipients map[string][]string
	err        error
}

func (d *mockDirectory) TruckGroups(_ context.Context, truckID string) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.groups[truckID], nil
}

func (d *mockDirectory) RuleRecipients(_ context.Context, ruleID string) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.recipients[ruleID], nil
}

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

func ptr[T any](v T) *T { return &v }

type testEngine struct {
	*Engine
	store     *mockRuleStore
	publisher *recordingPublisher
	clock     *fakeClock
}

type testOption func(*Config, *Deps)

func withDirectory(repo repository.Directory) testOption {
	return func(_ *Config, d *Deps) { d.Directory = NewDirectory(repo, time.Minute, testLogger()) }
}

func withConfig(fn func(*Config)) testOption {
	return func(c *Config, _ *Deps) { fn(c) }
}

func newTestEngine(t *testing.T, rules []entities.AlertRule, oracle geofence.Oracle, opts ...testOption) *testEngine {
	t.Helper()
	if oracle == nil {
		oracle = geofence.OracleFunc(func(context.Context, string, float64, float64) (bool, error) {
			return false, nil
		})
	}

	clock := newFakeClock()
	store := &mockRuleStore{rules: rules}
	pub := &recordingPublisher{}

	cooldowns := NewCooldownCache(5 * time.Minute)
	cooldowns.now = clock.Now
	states := NewGeofenceStateCache(time.Hour, false)
	states.now = clock.Now
	presence := NewPresenceMonitor()
	presence.now = clock.Now

	cfg := Config{DefaultSpeedLimit: 100}
	deps := Deps{
		Rules:     store,
		Oracle:    oracle,
		Geofences: states,
		Cooldowns: cooldowns,
		Presence:  presence,
		Publisher: pub,
		Log:       testLogger(),
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	engine, err := NewEngine(cfg, deps)
	require.NoError(t, err)
	engine.now = clock.Now
	require.NoError(t, engine.RefreshRules(t.Context()))

	return &testEngine{Engine: engine, store: store, publisher: pub, clock: clock}
}

func (te *testEngine) sample(truckID string, speed *float64, coords ...float64) *telemetry.PositionSample {
	s := &telemetry.PositionSample{
		SampleID:  "s-" + te.clock.Now().Format(time.RFC3339Nano),
		TruckID:   truckID,
		Speed:     speed,
		Timestamp: te.clock.Now(),
	}
	if len(coords) == 2 {
		s.Latitude, s.Longitude = &coords[0], &coords[1]
	}
	return s
}

func speedRule(id string, threshold *float64) entities.AlertRule {
	return entities.AlertRule{
		ID: id, Name: "speed " + id, Type: entities.RuleTypeSpeedLimit,
		Threshold: threshold, Enabled: true, OwnerID: "owner-1",
		Channels: []entities.AlertChannel{{Channel: "push"}, {Channel: "email"}},
	}
}

func geofenceRule(id string, ruleType entities.RuleType, geofenceID string) entities.AlertRule {
	return entities.AlertRule{
		ID: id, Name: "geofence " + id, Type: ruleType,
		GeofenceID: &geofenceID, Enabled: true, OwnerID: "owner-1",
	}
}

// sequenceOracle answers successive calls from a fixed script.
type sequenceOracle struct {
	mu      sync.Mutex
	answers []bool
	calls   int
}

func (o *sequenceOracle) IsInside(context.Context, string, float64, float64) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	answer := o.answers[o.calls%len(o.answers)]
	o.calls++
	return answer, nil
}

func (o *sequenceOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

func TestEngine_SpeedLimitCooldownScenario(t *testing.T) {
	te := newTestEngine(t, []entities.AlertRule{speedRule("r1", ptr(120.0))}, nil)
	ctx := t.Context()

	events := te.Evaluate(ctx, te.sample("T1", ptr(130.0)))
	require.Len(t, events, 1)
	alert := events[0]
	assert.Equal(t, entities.RuleTypeSpeedLimit, alert.AlertType)
	assert.Equal(t, SeverityWarning, alert.Severity)
	assert.Contains(t, alert.Message, "130.0")
	assert.Contains(t, alert.Message, "120.0")
	assert.Equal(t, "T1", alert.TruckID)
	assert.Equal(t, "r1", alert.RuleID)
	assert.Equal(t, []string{"push", "email"}, alert.Channels)
	assert.Equal(t, []string{"owner-1"}, alert.Recipients)
	assert.NotEmpty(t, alert.ID)
	require.NoError(t, alert.Validate())

	te.clock.Advance(time.Minute)
	assert.Empty(t, te.Evaluate(ctx, te.sample("T1", ptr(135.0))), "within cooldown")

	te.clock.Advance(5 * time.Minute)
	events = te.Evaluate(ctx, te.sample("T1", ptr(140.0)))
	require.Len(t, events, 1, "cooldown elapsed")
	assert.Contains(t, events[0].Message, "140.0")

	assert.Len(t, te.publisher.published(), 2)
}

func TestEngine_SpeedAtOrBelowThresholdNeverAlerts(t *testing.T) {
	te := newTestEngine(t, []entities.AlertRule{speedRule("r1", ptr(120.0))}, nil)

	for _, speed := range []float64{0, 80, 119.9, 120} {
		assert.Empty(t, te.Evaluate(t.Context(), te.sample("T1", ptr(speed))), "speed %v", speed)
		te.clock.Advance(time.Hour)
	}
	assert.Empty(t, te.publisher.published())
}

func TestEngine_DefaultSpeedLimit(t *testing.T) {
	te := newTestEngine(t, []entities.AlertRule{speedRule("r1", nil)}, nil)

	assert.Empty(t, te.Evaluate(t.Context(), te.sample("T1", ptr(100.0))))
	events := te.Evaluate(t.Context(), te.sample("T1", ptr(101.0)))
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Message, "100.0")
}

func TestEngine_MissingSpeedSkipsSpeedRules(t *testing.T) {
	te := newTestEngine(t, []entities.AlertRule{speedRule("r1", ptr(50.0))}, nil)

	assert.Empty(t, te.Evaluate(t.Context(), te.sample("T1", nil)))
	assert.Empty(t, te.Evaluate(t.Context(), te.sample("T1", ptr(-10.0))), "negative speed counts as missing")
}

func TestEngine_InvalidSamplesAreRejected(t *testing.T) {
	te := newTestEngine(t, []entities.AlertRule{speedRule("r1", ptr(50.0))}, nil)

	assert.Empty(t, te.Evaluate(t.Context(), nil))
	assert.Empty(t, te.Evaluate(t.Context(), &telemetry.PositionSample{Speed: ptr(200.0), Timestamp: time.Now()}))
	assert.Empty(t, te.Evaluate(t.Context(), &telemetry.PositionSample{TruckID: "T1", Speed: ptr(200.0)}))
}

func TestEngine_GeofenceEnterScenario(t *testing.T) {
	oracle := &sequenceOracle{answers: []bool{false, true, true, false, true}}
	te := newTestEngine(t, []entities.AlertRule{geofenceRule("r-enter", entities.RuleTypeGeofenceEnter, "G1")}, oracle)

	var firedAt []int
	for i := range 5 {
		events := te.Evaluate(t.Context(), te.sample("T1", ptr(40.0), 52.5, 13.4))
		if len(events) > 0 {
			require.Len(t, events, 1)
			assert.Equal(t, "G1", events[0].GeofenceID)
			assert.Equal(t, SeverityInfo, events[0].Severity)
			assert.Contains(t, events[0].Message, "entered geofence G1")
			firedAt = append(firedAt, i)
		}
		// Keep the cooldown out of the way so only edges matter.
		te.clock.Advance(10 * time.Minute)
	}

	assert.Equal(t, []int{1, 4}, firedAt)
}

func TestEngine_EnterAndExitShareOneOracleCall(t *testing.T) {
	oracle := &sequenceOracle{answers: []bool{false, true, false}}
	te := newTestEngine(t, []entities.AlertRule{
		geofenceRule("r-enter", entities.RuleTypeGeofenceEnter, "G1"),
		geofenceRule("r-exit", entities.RuleTypeGeofenceExit, "G1"),
	}, oracle)

	var got []string
	for range 3 {
		for _, ev := range te.Evaluate(t.Context(), te.sample("T1", nil, 1, 1)) {
			got = append(got, ev.RuleID)
		}
		te.clock.Advance(10 * time.Minute)
	}

	assert.Equal(t, []string{"r-enter", "r-exit"}, got)
	assert.Equal(t, 3, oracle.callCount(), "one oracle call per geofence per sample")
}

func TestEngine_GeofenceWithoutCoordinatesIsSkipped(t *testing.T) {
	oracle := &sequenceOracle{answers: []bool{true}}
	te := newTestEngine(t, []entities.AlertRule{geofenceRule("r-enter", entities.RuleTypeGeofenceEnter, "G1")}, oracle)

	te.Evaluate(t.Context(), te.sample("T1", ptr(10.0)))
	te.Evaluate(t.Context(), te.sample("T1", ptr(10.0), 95, 0)) // latitude out of range

	assert.Zero(t, oracle.callCount())
	assert.Zero(t, te.geofences.Len())
}

func TestEngine_OracleFailureSkipsOnlyThatGeofence(t *testing.T) {
	oracle := geofence.OracleFunc(func(_ context.Context, geofenceID string, _, _ float64) (bool, error) {
		if geofenceID == "broken" {
			return false, errors.New("spatial service unavailable")
		}
		return true, nil
	})
	te := newTestEngine(t, []entities.AlertRule{
		geofenceRule("r-broken", entities.RuleTypeGeofenceEnter, "broken"),
		speedRule("r-speed", ptr(80.0)),
	}, oracle)

	events := te.Evaluate(t.Context(), te.sample("T1", ptr(90.0), 1, 1))
	require.Len(t, events, 1)
	assert.Equal(t, "r-speed", events[0].RuleID)

	_, known := te.geofences.Inside("T1", "broken")
	assert.False(t, known, "failed lookups do not touch the state cache")
}

func TestEngine_OracleTimeout(t *testing.T) {
	oracle := geofence.OracleFunc(func(ctx context.Context, _ string, _, _ float64) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	})
	te := newTestEngine(t, []entities.AlertRule{
		geofenceRule("r-enter", entities.RuleTypeGeofenceEnter, "G1"),
	}, oracle, withConfig(func(c *Config) { c.OracleTimeout = 20 * time.Millisecond }))

	start := time.Now()
	assert.Empty(t, te.Evaluate(t.Context(), te.sample("T1", nil, 1, 1)))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEngine_ConcurrentDuplicateSamplesAlertOnce(t *testing.T) {
	te := newTestEngine(t, []entities.AlertRule{speedRule("r1", ptr(120.0))}, nil)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for range 50 {
		wg.Go(func() {
			<-start
			te.Evaluate(t.Context(), te.sample("T1", ptr(130.0)))
		})
	}
	close(start)
	wg.Wait()

	assert.Len(t, te.publisher.published(), 1)
}

func TestEngine_SetRulesDropsUnusableRules(t *testing.T) {
	disabled := speedRule("disabled", nil)
	disabled.Enabled = false

	te := newTestEngine(t, nil, nil)
	te.SetRules([]entities.AlertRule{
		speedRule("ok", nil),
		disabled,
		{ID: "no-geofence", Type: entities.RuleTypeGeofenceEnter, Enabled: true},
		{ID: "empty-geofence", Type: entities.RuleTypeGeofenceExit, GeofenceID: ptr(""), Enabled: true},
		{ID: "unknown", Type: "HARSH_BRAKING", Enabled: true},
		speedRule("zero-threshold", ptr(0.0)),
	})

	rules := te.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, "ok", rules[0].ID)
}

func TestEngine_RefreshFailureKeepsRules(t *testing.T) {
	te := newTestEngine(t, []entities.AlertRule{speedRule("r1", nil)}, nil)
	require.Len(t, te.Rules(), 1)

	te.store.setErr(errors.New("database is locked"))
	require.Error(t, te.RefreshRules(t.Context()))
	assert.Len(t, te.Rules(), 1)
}

func TestEngine_TruckGroupScope(t *testing.T) {
	north := speedRule("r-north", ptr(50.0))
	north.TruckGroupID = ptr("north")
	south := speedRule("r-south", ptr(50.0))
	south.TruckGroupID = ptr("south")

	dir := &mockDirectory{groups: map[string][]string{"T1": {"north"}}}
	te := newTestEngine(t, []entities.AlertRule{north, south}, nil, withDirectory(dir))

	events := te.Evaluate(t.Context(), te.sample("T1", ptr(60.0)))
	require.Len(t, events, 1)
	assert.Equal(t, "r-north", events[0].RuleID)

	assert.Empty(t, te.Evaluate(t.Context(), te.sample("T2", ptr(60.0))), "T2 is in no group")
}

func TestEngine_DirectoryFailureSkipsScopedRules(t *testing.T) {
	scoped := speedRule("r-scoped", ptr(50.0))
	scoped.TruckGroupID = ptr("north")
	global := speedRule("r-global", ptr(50.0))

	dir := &mockDirectory{err: errors.New("connection refused")}
	te := newTestEngine(t, []entities.AlertRule{scoped, global}, nil, withDirectory(dir))

	events := te.Evaluate(t.Context(), te.sample("T1", ptr(60.0)))
	require.Len(t, events, 1)
	assert.Equal(t, "r-global", events[0].RuleID)
	assert.Equal(t, []string{"owner-1"}, events[0].Recipients, "recipients degrade to the owner")
}

func TestEngine_RecipientsIncludeSubscribers(t *testing.T) {
	dir := &mockDirectory{recipients: map[string][]string{"r1": {"dispatcher-2", "owner-1", "dispatcher-1"}}}
	te := newTestEngine(t, []entities.AlertRule{speedRule("r1", ptr(50.0))}, nil, withDirectory(dir))

	events := te.Evaluate(t.Context(), te.sample("T1", ptr(60.0)))
	require.Len(t, events, 1)
	assert.Equal(t, []string{"owner-1", "dispatcher-2", "dispatcher-1"}, events[0].Recipients)
}

func TestEngine_IdleRule(t *testing.T) {
	idle := entities.AlertRule{ID: "r-idle", Type: entities.RuleTypeIdle, Enabled: true, OwnerID: "owner-1"}
	te := newTestEngine(t, []entities.AlertRule{idle}, nil, withConfig(func(c *Config) {
		c.IdleSpeed = 3
		c.IdleDuration = 10 * time.Minute
	}))

	var firedAt []int
	for i := range 14 {
		speed := 1.0
		if i == 2 {
			speed = 30 // moved briefly
		}
		if events := te.Evaluate(t.Context(), te.sample("T1", ptr(speed))); len(events) > 0 {
			assert.Equal(t, SeverityInfo, events[0].Severity)
			firedAt = append(firedAt, i)
		}
		te.clock.Advance(time.Minute)
	}

	// Idle since minute 3, so ten idle minutes are complete at minute 13.
	assert.Equal(t, []int{13}, firedAt)
}

func TestEngine_IdleRuleAtOneHertz(t *testing.T) {
	idle := entities.AlertRule{ID: "r-idle", Type: entities.RuleTypeIdle, Enabled: true, OwnerID: "owner-1"}
	te := newTestEngine(t, []entities.AlertRule{idle}, nil, withConfig(func(c *Config) {
		c.IdleSpeed = 3
		c.IdleDuration = 10 * time.Minute
	}))

	var firedAt []int
	for i := range 1800 {
		if events := te.Evaluate(t.Context(), te.sample("T1", ptr(0.0))); len(events) > 0 {
			firedAt = append(firedAt, i)
		}
		te.clock.Advance(time.Second)
	}

	// First alert once ten minutes are covered, then once per 5m cooldown.
	assert.Equal(t, []int{600, 900, 1200, 1500}, firedAt)
}

func TestEngine_OfflineRule(t *testing.T) {
	offline := entities.AlertRule{ID: "r-off", Type: entities.RuleTypeOffline, Threshold: ptr(10.0), Enabled: true}
	te := newTestEngine(t, []entities.AlertRule{offline}, nil)
	ctx := t.Context()

	assert.Empty(t, te.Evaluate(ctx, te.sample("T1", ptr(50.0), 52.5, 13.4)), "offline rules ignore samples")
	te.Evaluate(ctx, te.sample("T2", nil))

	te.clock.Advance(5 * time.Minute)
	te.Evaluate(ctx, te.sample("T2", nil))
	te.clock.Advance(6 * time.Minute)

	events := te.CheckOffline(ctx)
	require.Len(t, events, 1, "only T1 has been silent for 10 minutes")
	assert.Equal(t, "T1", events[0].TruckID)
	assert.Equal(t, SeverityCritical, events[0].Severity)
	require.NotNil(t, events[0].Latitude)
	assert.InDelta(t, 52.5, *events[0].Latitude, 0)
	assert.Equal(t, te.clock.Now(), events[0].TriggeredAt)

	assert.Empty(t, te.CheckOffline(ctx), "one alert per silence")

	// Reporting again re-arms the rule.
	te.Evaluate(ctx, te.sample("T1", nil))
	te.clock.Advance(11 * time.Minute)
	events = te.CheckOffline(ctx)
	assert.Len(t, events, 2, "T1 again after the cooldown, plus T2")
}

func TestEngine_HandlePayload(t *testing.T) {
	te := newTestEngine(t, []entities.AlertRule{speedRule("r1", ptr(100.0))}, nil)

	require.NoError(t, te.HandlePayload(t.Context(), []byte(`{"truck_id":"T1","speed":130,"timestamp":"2026-10-17T08:00:00Z"}`)))
	require.Len(t, te.publisher.published(), 1)
	assert.NotEmpty(t, te.publisher.published()[0].SampleID)

	err := te.HandlePayload(t.Context(), []byte(`{"speed":130}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, telemetry.ErrInvalidSample)
}

func TestEngine_CacheMaintenance(t *testing.T) {
	te := newTestEngine(t, []entities.AlertRule{
		speedRule("r1", ptr(50.0)),
		geofenceRule("r-enter", entities.RuleTypeGeofenceEnter, "G1"),
	}, nil, withConfig(func(c *Config) { c.Retention = time.Hour }))

	te.Evaluate(t.Context(), te.sample("T1", ptr(60.0), 1, 1))
	sizes := te.CacheSizes()
	assert.Equal(t, 1, sizes["cooldown"])
	assert.Equal(t, 1, sizes["geofence_state"])
	assert.Equal(t, 1, sizes["motion"])
	assert.Equal(t, 1, sizes["presence"])

	te.clock.Advance(2 * time.Hour)
	te.CleanupCooldowns()
	te.SweepStates()

	sizes = te.CacheSizes()
	assert.Zero(t, sizes["cooldown"])
	assert.Zero(t, sizes["geofence_state"])
	assert.Zero(t, sizes["motion"])
	assert.Zero(t, sizes["presence"])
}

func TestEngine_StartRefreshesRulesUntilStopped(t *testing.T) {
	te := newTestEngine(t, nil, nil, withConfig(func(c *Config) {
		c.RuleRefreshInterval = 10 * time.Millisecond
	}))
	before := te.store.calls.Load()

	te.store.mu.Lock()
	te.store.rules = []entities.AlertRule{speedRule("late", nil)}
	te.store.mu.Unlock()

	te.Start(t.Context())
	assert.Eventually(t, func() bool { return len(te.Rules()) == 1 }, 2*time.Second, 10*time.Millisecond)

	te.Stop()
	after := te.store.calls.Load()
	assert.Greater(t, after, before)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, te.store.calls.Load(), "no refreshes after Stop")

	te.Stop() // idempotent
}

func TestEngine_StartStopIndependentOfRuleLock(t *testing.T) {
	te := newTestEngine(t, nil, nil)

	// A rule swap holding the rule lock must not block the loop lifecycle.
	te.rulesMu.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		te.Start(t.Context())
		te.Stop()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start/Stop blocked on the rule lock")
	}
	te.rulesMu.Unlock()
}

func TestEngine_GeofenceRuleWithoutReference(t *testing.T) {
	oracle := &sequenceOracle{answers: []bool{true}}
	te := newTestEngine(t, nil, oracle)

	// Bypasses SetRules validation.
	te.rulesMu.Lock()
	te.rules = []entities.AlertRule{
		{ID: "nil-geofence", Type: entities.RuleTypeGeofenceEnter, Enabled: true},
		{ID: "empty-geofence", Type: entities.RuleTypeGeofenceExit, GeofenceID: ptr(""), Enabled: true},
	}
	te.rulesMu.Unlock()

	assert.NotPanics(t, func() {
		assert.Empty(t, te.Evaluate(t.Context(), te.sample("T1", nil, 52.5, 13.4)))
	})
	assert.Equal(t, 0, oracle.callCount())
}

func TestNewEngine_RequiresCollaborators(t *testing.T) {
	_, err := NewEngine(Config{}, Deps{})
	require.Error(t, err)
	assert.Equal(t, errors.CategoryConfig, errors.CategoryOf(err))
}

func TestInitialize(t *testing.T) {
	store := &mockRuleStore{rules: []entities.AlertRule{speedRule("r1", nil)}}
	engine, err := Initialize(t.Context(), Config{}, Deps{
		Rules:     store,
		Oracle:    geofence.OracleFunc(func(context.Context, string, float64, float64) (bool, error) { return false, nil }),
		Geofences: NewGeofenceStateCache(0, false),
		Cooldowns: NewCooldownCache(0),
		Publisher: &recordingPublisher{},
	})
	require.NoError(t, err)
	t.Cleanup(engine.Stop)

	assert.Len(t, engine.Rules(), 1)
	assert.Len(t, engine.RuleTypeCatalog(), 5)

	store.setErr(errors.New("no such table"))
	_, err = Initialize(t.Context(), Config{}, Deps{
		Rules:     store,
		Oracle:    geofence.OracleFunc(func(context.Context, string, float64, float64) (bool, error) { return false, nil }),
		Geofences: NewGeofenceStateCache(0, false),
		Cooldowns: NewCooldownCache(0),
		Publisher: &recordingPublisher{},
	})
	require.Error(t, err)
}
