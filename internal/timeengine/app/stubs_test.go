package app_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aelexs/time-engine/internal/domain"
	"github.com/aelexs/time-engine/internal/domain/domaintest"
	"github.com/aelexs/time-engine/internal/timeengine/app"
	"github.com/aelexs/time-engine/internal/tzconv"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	testUser  = domain.MustUserID("6f1c2a4e-8d3b-4f5a-9c7e-1b2d3e4f5a6b")
	testStart = time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)
)

// wall builds a wall-clock time; the location is ignored by the engine.
func wall(y int, mo time.Month, d, h, mi int) time.Time {
	return time.Date(y, mo, d, h, mi, 0, 0, time.UTC)
}

// stubStopwatchStore implements app.StopwatchStore with function fields.
type stubStopwatchStore struct {
	createFn     func(ctx context.Context, entry domain.StopwatchEntry) (domain.StopwatchEntry, error)
	listByUserFn func(ctx context.Context, userID string) ([]domain.StopwatchEntry, error)
	deleteFn     func(ctx context.Context, userID, id string) error
}

func (s *stubStopwatchStore) Create(ctx context.Context, entry domain.StopwatchEntry) (domain.StopwatchEntry, error) {
	if s.createFn != nil {
		return s.createFn(ctx, entry)
	}
	return entry, nil
}

func (s *stubStopwatchStore) ListByUser(ctx context.Context, userID string) ([]domain.StopwatchEntry, error) {
	if s.listByUserFn != nil {
		return s.listByUserFn(ctx, userID)
	}
	return nil, nil
}

func (s *stubStopwatchStore) Delete(ctx context.Context, userID, id string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, userID, id)
	}
	return nil
}

// stubBedtimeStore implements app.BedtimeStore with function fields.
type stubBedtimeStore struct {
	createFn     func(ctx context.Context, entry domain.BedtimeEntry) (domain.BedtimeEntry, error)
	listByUserFn func(ctx context.Context, userID string) ([]domain.BedtimeEntry, error)
	deleteFn     func(ctx context.Context, userID, id string) error
}

func (s *stubBedtimeStore) Create(ctx context.Context, entry domain.BedtimeEntry) (domain.BedtimeEntry, error) {
	if s.createFn != nil {
		return s.createFn(ctx, entry)
	}
	return entry, nil
}

func (s *stubBedtimeStore) ListByUser(ctx context.Context, userID string) ([]domain.BedtimeEntry, error) {
	if s.listByUserFn != nil {
		return s.listByUserFn(ctx, userID)
	}
	return nil, nil
}

func (s *stubBedtimeStore) Delete(ctx context.Context, userID, id string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, userID, id)
	}
	return nil
}

// stubAlarmStore implements app.AlarmStore with function fields.
type stubAlarmStore struct {
	createFn       func(ctx context.Context, alarm domain.AlarmEntry) (domain.AlarmEntry, error)
	listByUserFn   func(ctx context.Context, userID string) ([]domain.AlarmEntry, error)
	updateStatusFn func(ctx context.Context, update app.AlarmStatusUpdate) error
	deleteFn       func(ctx context.Context, userID, id string) error
}

func (s *stubAlarmStore) Create(ctx context.Context, alarm domain.AlarmEntry) (domain.AlarmEntry, error) {
	if s.createFn != nil {
		return s.createFn(ctx, alarm)
	}
	return alarm, nil
}

func (s *stubAlarmStore) ListByUser(ctx context.Context, userID string) ([]domain.AlarmEntry, error) {
	if s.listByUserFn != nil {
		return s.listByUserFn(ctx, userID)
	}
	return nil, nil
}

func (s *stubAlarmStore) UpdateStatus(ctx context.Context, update app.AlarmStatusUpdate) error {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, update)
	}
	return nil
}

func (s *stubAlarmStore) Delete(ctx context.Context, userID, id string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, userID, id)
	}
	return nil
}

// stubPreferenceStore implements app.PreferenceStore with function fields.
type stubPreferenceStore struct {
	getFn func(ctx context.Context, userID string) (string, error)
	putFn func(ctx context.Context, userID, timezone string) error
}

func (s *stubPreferenceStore) Get(ctx context.Context, userID string) (string, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return "", domain.ErrNotFound
}

func (s *stubPreferenceStore) Put(ctx context.Context, userID, timezone string) error {
	if s.putFn != nil {
		return s.putFn(ctx, userID, timezone)
	}
	return nil
}

// memCache implements app.SnapshotCache over JSON bytes, so reads exercise
// the same serialization a real cache slot does.
type memCache struct {
	mu      sync.Mutex
	slots   map[string][]byte
	loads   int
	saves   int
	loadErr error
	saveErr error
}

func newMemCache() *memCache {
	return &memCache{slots: make(map[string][]byte)}
}

func (c *memCache) Load(_ context.Context, key string) (domain.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loads++
	if c.loadErr != nil {
		return domain.Snapshot{}, c.loadErr
	}
	raw, ok := c.slots[key]
	if !ok {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}

func (c *memCache) Save(_ context.Context, key string, snap domain.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saveErr != nil {
		return c.saveErr
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	c.slots[key] = raw
	c.saves++
	return nil
}

func (c *memCache) seed(t *testing.T, key string, snap domain.Snapshot) {
	t.Helper()
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[key] = raw
}

// decode reads a slot back the way Init would.
func (c *memCache) decode(t *testing.T, key string) domain.Snapshot {
	t.Helper()
	c.mu.Lock()
	raw, ok := c.slots[key]
	c.mu.Unlock()
	require.True(t, ok, "cache slot %q is empty", key)

	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	return snap
}

func (c *memCache) saveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

func (c *memCache) loadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

// harness wires an Engine to stubs whose Create calls assign sequential IDs
// and timestamps the way the remote store does.
type harness struct {
	clock     *domaintest.FakeClock
	cache     *memCache
	stopwatch *stubStopwatchStore
	bedtime   *stubBedtimeStore
	alarms    *stubAlarmStore
	prefStore *stubPreferenceStore
	converter *tzconv.Converter
	detect    func() (string, tzconv.DetectionMethod)
}

func newHarness() *harness {
	clock := domaintest.NewFakeClock(testStart)
	ids := domaintest.SequentialIDs("id")

	h := &harness{
		clock:     clock,
		cache:     newMemCache(),
		prefStore: &stubPreferenceStore{},
		converter: tzconv.NewConverter(),
		detect: func() (string, tzconv.DetectionMethod) {
			return "Europe/Lisbon", tzconv.DetectedFromSystem
		},
	}
	h.stopwatch = &stubStopwatchStore{
		createFn: func(_ context.Context, e domain.StopwatchEntry) (domain.StopwatchEntry, error) {
			clock.Advance(time.Second)
			e.ID = ids()
			e.CreatedAt = domain.NowUTC(clock)
			return e, nil
		},
	}
	h.bedtime = &stubBedtimeStore{
		createFn: func(_ context.Context, e domain.BedtimeEntry) (domain.BedtimeEntry, error) {
			clock.Advance(time.Second)
			e.ID = ids()
			e.CreatedAt = domain.NowUTC(clock)
			return e, nil
		},
	}
	h.alarms = &stubAlarmStore{
		createFn: func(_ context.Context, a domain.AlarmEntry) (domain.AlarmEntry, error) {
			clock.Advance(time.Second)
			a.ID = ids()
			a.CreatedAt = domain.NowUTC(clock)
			a.UpdatedAt = a.CreatedAt
			return a, nil
		},
	}
	return h
}

func (h *harness) preferences() *app.PreferenceService {
	return app.NewPreferenceService(app.PreferenceServiceConfig{
		Store:     h.prefStore,
		Converter: h.converter,
		Logger:    slog.Default(),
		Detect:    h.detect,
	})
}

func (h *harness) engineConfig(userID domain.UserID) app.EngineConfig {
	return app.EngineConfig{
		UserID:      userID,
		Stopwatch:   h.stopwatch,
		Bedtime:     h.bedtime,
		Alarms:      h.alarms,
		Preferences: h.preferences(),
		Cache:       h.cache,
		Converter:   h.converter,
		Clock:       h.clock,
		Logger:      slog.Default(),
	}
}

func (h *harness) newEngine(userID domain.UserID) *app.Engine {
	return app.NewEngine(h.engineConfig(userID))
}

// started returns an initialized engine for testUser with the given zone
// already stored as the user's preference.
func (h *harness) started(t *testing.T, tz string) *app.Engine {
	t.Helper()
	h.prefStore.getFn = func(context.Context, string) (string, error) { return tz, nil }

	eng := h.newEngine(testUser)
	require.NoError(t, eng.Init(context.Background()))
	require.Equal(t, tz, eng.Timezone())
	return eng
}

// assertCacheMirrors checks that the cached slot decodes to the live state.
func (h *harness) assertCacheMirrors(t *testing.T, eng *app.Engine) {
	t.Helper()
	require.Equal(t, eng.Snapshot(), h.cache.decode(t, testUser.String()))
}
