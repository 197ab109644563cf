package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/time-engine/internal/domain"
	"github.com/aelexs/time-engine/internal/timeengine/app"
	"github.com/aelexs/time-engine/internal/tzconv"
)

func TestEngine_InitDefaults(t *testing.T) {
	t.Run("no cache and no preference adopts detected zone", func(t *testing.T) {
		h := newHarness()
		eng := h.newEngine(testUser)

		require.NoError(t, eng.Init(context.Background()))

		assert.Equal(t, "Europe/Lisbon", eng.Timezone())
		assert.Empty(t, eng.Stopwatch())
		assert.Empty(t, eng.Bedtime())
		assert.Empty(t, eng.Alarms())
	})

	t.Run("no system zone falls back to UTC", func(t *testing.T) {
		h := newHarness()
		h.detect = func() (string, tzconv.DetectionMethod) { return "", tzconv.DetectedFallback }
		eng := h.newEngine(testUser)

		require.NoError(t, eng.Init(context.Background()))

		assert.Equal(t, "UTC", eng.Timezone())
	})

	t.Run("detected zone is not written back", func(t *testing.T) {
		h := newHarness()
		h.prefStore.putFn = func(context.Context, string, string) error {
			t.Fatal("preference must not be written during init")
			return nil
		}
		eng := h.newEngine(testUser)

		require.NoError(t, eng.Init(context.Background()))
	})

	t.Run("unreachable stores fall back to defaults", func(t *testing.T) {
		h := newHarness()
		boom := errors.New("connection refused")
		h.cache.loadErr = boom
		h.prefStore.getFn = func(context.Context, string) (string, error) { return "", boom }
		h.stopwatch.listByUserFn = func(context.Context, string) ([]domain.StopwatchEntry, error) { return nil, boom }
		h.detect = func() (string, tzconv.DetectionMethod) { return "UTC", tzconv.DetectedFallback }
		eng := h.newEngine(testUser)

		require.NoError(t, eng.Init(context.Background()))

		assert.Equal(t, "UTC", eng.Timezone())
		assert.Empty(t, eng.Stopwatch())
	})

	t.Run("without identity skips remote reads", func(t *testing.T) {
		h := newHarness()
		h.stopwatch.listByUserFn = func(context.Context, string) ([]domain.StopwatchEntry, error) {
			t.Fatal("remote read without identity")
			return nil, nil
		}
		eng := h.newEngine(domain.UserID{})

		require.NoError(t, eng.Init(context.Background()))

		assert.Equal(t, "Europe/Lisbon", eng.Timezone())
		assert.Equal(t, eng.Snapshot(), h.cache.decode(t, app.AnonymousCacheKey))
	})
}

func TestEngine_InitFromCacheAndRemote(t *testing.T) {
	cachedEntry := domain.StopwatchEntry{
		ID:         "cached-1",
		UserID:     testUser.String(),
		Heading:    "Cached",
		StartUTC:   time.Date(2023, 12, 31, 10, 0, 0, 0, time.UTC),
		EndUTC:     time.Date(2023, 12, 31, 11, 0, 0, 0, time.UTC),
		DurationMs: 3_600_000,
		Timezone:   "Asia/Tokyo",
		CreatedAt:  time.Date(2023, 12, 31, 11, 0, 0, 0, time.UTC),
	}
	cached := domain.EmptySnapshot()
	cached.Timezone = "Asia/Tokyo"
	cached.Stopwatch = []domain.StopwatchEntry{cachedEntry}

	t.Run("cached zone is kept when no preference exists", func(t *testing.T) {
		h := newHarness()
		h.cache.seed(t, testUser.String(), cached)
		eng := h.newEngine(testUser)

		require.NoError(t, eng.Init(context.Background()))

		assert.Equal(t, "Asia/Tokyo", eng.Timezone())
	})

	t.Run("stored preference overrides cached zone", func(t *testing.T) {
		h := newHarness()
		h.cache.seed(t, testUser.String(), cached)
		h.prefStore.getFn = func(context.Context, string) (string, error) { return "America/Chicago", nil }
		eng := h.newEngine(testUser)

		require.NoError(t, eng.Init(context.Background()))

		assert.Equal(t, "America/Chicago", eng.Timezone())
		h.assertCacheMirrors(t, eng)
	})

	t.Run("stored preference that no longer resolves is ignored", func(t *testing.T) {
		h := newHarness()
		h.cache.seed(t, testUser.String(), cached)
		h.prefStore.getFn = func(context.Context, string) (string, error) { return "Atlantis/Capital", nil }
		eng := h.newEngine(testUser)

		require.NoError(t, eng.Init(context.Background()))

		assert.Equal(t, "Asia/Tokyo", eng.Timezone())
	})

	t.Run("remote rows replace cached rows newest first", func(t *testing.T) {
		h := newHarness()
		h.cache.seed(t, testUser.String(), cached)
		older := domain.StopwatchEntry{ID: "r-1", Heading: "Old", CreatedAt: testStart.Add(-2 * time.Hour)}
		newer := domain.StopwatchEntry{ID: "r-2", Heading: "New", CreatedAt: testStart.Add(-time.Hour)}
		h.stopwatch.listByUserFn = func(_ context.Context, userID string) ([]domain.StopwatchEntry, error) {
			assert.Equal(t, testUser.String(), userID)
			return []domain.StopwatchEntry{older, newer}, nil
		}
		eng := h.newEngine(testUser)

		require.NoError(t, eng.Init(context.Background()))

		got := eng.Stopwatch()
		require.Len(t, got, 2)
		assert.Equal(t, "r-2", got[0].ID)
		assert.Equal(t, "r-1", got[1].ID)
	})

	t.Run("remote read failure keeps cached rows", func(t *testing.T) {
		h := newHarness()
		h.cache.seed(t, testUser.String(), cached)
		h.stopwatch.listByUserFn = func(context.Context, string) ([]domain.StopwatchEntry, error) {
			return nil, errors.New("throttled")
		}
		eng := h.newEngine(testUser)

		require.NoError(t, eng.Init(context.Background()))

		assert.Equal(t, []domain.StopwatchEntry{cachedEntry}, eng.Stopwatch())
	})

	t.Run("cached zone that no longer resolves triggers detection", func(t *testing.T) {
		h := newHarness()
		bad := cached.Clone()
		bad.Timezone = "Nowhere/Land"
		h.cache.seed(t, testUser.String(), bad)
		eng := h.newEngine(testUser)

		require.NoError(t, eng.Init(context.Background()))

		assert.Equal(t, "Europe/Lisbon", eng.Timezone())
	})
}

func TestEngine_InitIsIdempotent(t *testing.T) {
	h := newHarness()
	eng := h.newEngine(testUser)

	require.NoError(t, eng.Init(context.Background()))
	require.NoError(t, eng.Init(context.Background()))

	assert.Equal(t, 1, h.cache.loadCount())
}

func TestEngine_SetTimezone(t *testing.T) {
	t.Run("stores preference then adopts zone", func(t *testing.T) {
		h := newHarness()
		eng := h.started(t, "UTC")
		var stored string
		h.prefStore.putFn = func(_ context.Context, userID, tz string) error {
			assert.Equal(t, testUser.String(), userID)
			assert.Equal(t, "UTC", eng.Timezone(), "zone must not change before the remote write")
			stored = tz
			return nil
		}

		require.NoError(t, eng.SetTimezone(context.Background(), "Europe/Paris"))

		assert.Equal(t, "Europe/Paris", stored)
		assert.Equal(t, "Europe/Paris", eng.Timezone())
		h.assertCacheMirrors(t, eng)
	})

	t.Run("invalid zone is rejected before any write", func(t *testing.T) {
		h := newHarness()
		eng := h.started(t, "UTC")
		h.prefStore.putFn = func(context.Context, string, string) error {
			t.Fatal("unexpected remote write")
			return nil
		}

		err := eng.SetTimezone(context.Background(), "Mars/Base")

		require.ErrorIs(t, err, domain.ErrInvalidTimezone)
		assert.Equal(t, "UTC", eng.Timezone())
	})

	t.Run("remote failure leaves zone and cache unchanged", func(t *testing.T) {
		h := newHarness()
		eng := h.started(t, "UTC")
		saves := h.cache.saveCount()
		h.prefStore.putFn = func(context.Context, string, string) error { return errors.New("timeout") }

		err := eng.SetTimezone(context.Background(), "Europe/Paris")

		require.Error(t, err)
		assert.Equal(t, "UTC", eng.Timezone())
		assert.Equal(t, saves, h.cache.saveCount())
	})

	t.Run("without identity", func(t *testing.T) {
		h := newHarness()
		eng := h.newEngine(domain.UserID{})
		require.NoError(t, eng.Init(context.Background()))

		err := eng.SetTimezone(context.Background(), "Europe/Paris")

		require.ErrorIs(t, err, domain.ErrNoIdentity)
	})

	t.Run("without preference service", func(t *testing.T) {
		h := newHarness()
		cfg := h.engineConfig(testUser)
		cfg.Preferences = nil
		eng := app.NewEngine(cfg)
		require.NoError(t, eng.Init(context.Background()))
		before := eng.Timezone()
		saves := h.cache.saveCount()

		err := eng.SetTimezone(context.Background(), "Europe/Paris")

		require.ErrorIs(t, err, domain.ErrUnavailable)
		assert.Equal(t, before, eng.Timezone())
		assert.Equal(t, saves, h.cache.saveCount())
	})
}

func TestEngine_NoIdentityMutationsHaveNoSideEffects(t *testing.T) {
	h := newHarness()
	h.stopwatch.createFn = func(context.Context, domain.StopwatchEntry) (domain.StopwatchEntry, error) {
		t.Fatal("remote write without identity")
		return domain.StopwatchEntry{}, nil
	}
	eng := h.newEngine(domain.UserID{})
	require.NoError(t, eng.Init(context.Background()))
	before := eng.Snapshot()
	saves := h.cache.saveCount()
	ctx := context.Background()

	_, err := eng.AddStopwatchEntry(ctx, app.StopwatchInput{Heading: "x", StartLocal: wall(2024, 1, 1, 9, 0), EndLocal: wall(2024, 1, 1, 10, 0)})
	assert.ErrorIs(t, err, domain.ErrNoIdentity)
	_, err = eng.AddBedtimeEntry(ctx, app.BedtimeInput{SleepLocal: wall(2024, 1, 1, 22, 0), WakeLocal: wall(2024, 1, 2, 6, 0)})
	assert.ErrorIs(t, err, domain.ErrNoIdentity)
	_, err = eng.AddAlarm(ctx, app.AlarmInput{Title: "x", Source: domain.AlarmSourceCustom, TriggerLocal: wall(2024, 1, 1, 9, 0)})
	assert.ErrorIs(t, err, domain.ErrNoIdentity)
	assert.ErrorIs(t, eng.UpdateAlarmStatus(ctx, "a", domain.AlarmStatusDisabled, nil), domain.ErrNoIdentity)
	assert.ErrorIs(t, eng.DeleteAlarm(ctx, "a"), domain.ErrNoIdentity)
	assert.ErrorIs(t, eng.DeleteStopwatchEntry(ctx, "a"), domain.ErrNoIdentity)
	assert.ErrorIs(t, eng.DeleteBedtimeEntry(ctx, "a"), domain.ErrNoIdentity)

	assert.Equal(t, before, eng.Snapshot())
	assert.Equal(t, saves, h.cache.saveCount())
}

func TestEngine_Close(t *testing.T) {
	t.Run("flushes snapshot and rejects later mutations", func(t *testing.T) {
		h := newHarness()
		eng := h.started(t, "UTC")
		saves := h.cache.saveCount()

		require.NoError(t, eng.Close(context.Background()))
		assert.Equal(t, saves+1, h.cache.saveCount())

		_, err := eng.AddStopwatchEntry(context.Background(), app.StopwatchInput{
			Heading: "late", StartLocal: wall(2024, 1, 1, 9, 0), EndLocal: wall(2024, 1, 1, 10, 0),
		})
		assert.ErrorIs(t, err, domain.ErrEngineClosed)
		assert.ErrorIs(t, eng.Close(context.Background()), domain.ErrEngineClosed)
		assert.ErrorIs(t, eng.Init(context.Background()), domain.ErrEngineClosed)
	})

	t.Run("uninitialized engine does not overwrite the cache", func(t *testing.T) {
		h := newHarness()
		eng := h.newEngine(testUser)

		require.NoError(t, eng.Close(context.Background()))

		assert.Equal(t, 0, h.cache.saveCount())
	})

	t.Run("waits for an in-flight init", func(t *testing.T) {
		h := newHarness()
		entered := make(chan struct{})
		release := make(chan struct{})
		h.stopwatch.listByUserFn = func(context.Context, string) ([]domain.StopwatchEntry, error) {
			close(entered)
			<-release
			return nil, nil
		}
		eng := h.newEngine(testUser)

		initErr := make(chan error, 1)
		go func() { initErr <- eng.Init(context.Background()) }()
		<-entered

		closeErr := make(chan error, 1)
		go func() { closeErr <- eng.Close(context.Background()) }()
		assert.Never(t, func() bool { return len(closeErr) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

		close(release)
		require.NoError(t, <-initErr)
		require.NoError(t, <-closeErr)

		// One write from Init, then the flush from Close.
		assert.Equal(t, 2, h.cache.saveCount())
		h.assertCacheMirrors(t, eng)
		assert.ErrorIs(t, eng.Init(context.Background()), domain.ErrEngineClosed)
	})

	t.Run("flush failure is reported", func(t *testing.T) {
		h := newHarness()
		eng := h.started(t, "UTC")
		h.cache.saveErr = errors.New("disk full")

		assert.Error(t, eng.Close(context.Background()))
	})
}

func TestEngine_CacheWriteFailureKeepsAppliedMutation(t *testing.T) {
	h := newHarness()
	eng := h.started(t, "UTC")
	h.cache.saveErr = errors.New("disk full")

	entry, err := eng.AddStopwatchEntry(context.Background(), app.StopwatchInput{
		Heading: "Focus", StartLocal: wall(2024, 1, 1, 9, 0), EndLocal: wall(2024, 1, 1, 9, 30),
	})

	require.NoError(t, err)
	assert.Equal(t, []domain.StopwatchEntry{entry}, eng.Stopwatch())
}

func TestEngine_SameCollectionOperationsSerialize(t *testing.T) {
	h := newHarness()
	eng := h.started(t, "UTC")

	var inFlight, maxInFlight int
	var mu sync.Mutex
	create := h.stopwatch.createFn
	h.stopwatch.createFn = func(ctx context.Context, e domain.StopwatchEntry) (domain.StopwatchEntry, error) {
		mu.Lock()
		inFlight++
		maxInFlight = max(maxInFlight, inFlight)
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return create(ctx, e)
	}

	const n = 20
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.AddStopwatchEntry(context.Background(), app.StopwatchInput{
				Heading: "Parallel", StartLocal: wall(2024, 1, 1, 9, 0), EndLocal: wall(2024, 1, 1, 10, 0),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight, "remote writes on one collection must not overlap")
	assert.Len(t, eng.Stopwatch(), n)
	h.assertCacheMirrors(t, eng)
}

func TestEngine_CrossCollectionMutationsKeepCacheFaithful(t *testing.T) {
	h := newHarness()
	eng := h.started(t, "America/New_York")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, err := eng.AddStopwatchEntry(ctx, app.StopwatchInput{
				Heading: "S", StartLocal: wall(2024, 1, 1, 9, i), EndLocal: wall(2024, 1, 1, 10, i),
			})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := eng.AddBedtimeEntry(ctx, app.BedtimeInput{
				SleepLocal: wall(2024, 1, 1, 22, i), WakeLocal: wall(2024, 1, 2, 6, i),
			})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := eng.AddAlarm(ctx, app.AlarmInput{
				Title: "A", Source: domain.AlarmSourceNote, TriggerLocal: wall(2024, 1, 2, 7, i),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap := eng.Snapshot()
	assert.Len(t, snap.Stopwatch, 10)
	assert.Len(t, snap.Bedtime, 10)
	assert.Len(t, snap.Alarms, 10)
	h.assertCacheMirrors(t, eng)
}

func TestEngine_ReplayedApplyDoesNotDuplicate(t *testing.T) {
	h := newHarness()
	eng := h.started(t, "UTC")
	h.stopwatch.createFn = func(_ context.Context, e domain.StopwatchEntry) (domain.StopwatchEntry, error) {
		e.ID = "fixed-id"
		e.CreatedAt = testStart
		return e, nil
	}
	in := app.StopwatchInput{Heading: "Retry", StartLocal: wall(2024, 1, 1, 9, 0), EndLocal: wall(2024, 1, 1, 10, 0)}

	_, err := eng.AddStopwatchEntry(context.Background(), in)
	require.NoError(t, err)
	_, err = eng.AddStopwatchEntry(context.Background(), in)
	require.NoError(t, err)

	assert.Len(t, eng.Stopwatch(), 1)
}

func TestEngine_Views(t *testing.T) {
	h := newHarness()
	eng := h.started(t, "America/New_York")
	instant := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)

	formatted := eng.FormatWithTZ(context.Background(), instant, "yyyy-MM-dd HH:mm")
	assert.False(t, formatted.Degraded)
	assert.Equal(t, "2024-01-01 09:00", formatted.Text)

	local := eng.ToUserDate(context.Background(), instant)
	assert.False(t, local.Degraded)
	assert.Equal(t, 9, local.Time.Hour())
	assert.Equal(t, "America/New_York", local.Time.Location().String())
}

func TestEngine_ViewsAreCopies(t *testing.T) {
	h := newHarness()
	eng := h.started(t, "UTC")
	_, err := eng.AddStopwatchEntry(context.Background(), app.StopwatchInput{
		Heading: "Mine", StartLocal: wall(2024, 1, 1, 9, 0), EndLocal: wall(2024, 1, 1, 10, 0),
	})
	require.NoError(t, err)

	list := eng.Stopwatch()
	list[0].Heading = "tampered"

	assert.Equal(t, "Mine", eng.Stopwatch()[0].Heading)
}
