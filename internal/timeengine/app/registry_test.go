package app_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/time-engine/internal/domain"
	"github.com/aelexs/time-engine/internal/timeengine/app"
)

func newTestRegistry(h *harness) *app.Registry {
	return app.NewRegistry(h.registryConfig())
}

func (h *harness) registryConfig() app.RegistryConfig {
	return app.RegistryConfig{
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

func TestRegistry_Get(t *testing.T) {
	t.Run("returns the same initialized engine", func(t *testing.T) {
		h := newHarness()
		reg := newTestRegistry(h)
		t.Cleanup(func() { _ = reg.Close(context.Background()) })

		first, err := reg.Get(context.Background(), testUser)
		require.NoError(t, err)
		second, err := reg.Get(context.Background(), testUser)
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, "Europe/Lisbon", first.Timezone())
		assert.Equal(t, 1, reg.Len())
	})

	t.Run("concurrent first calls share one init", func(t *testing.T) {
		h := newHarness()
		reg := newTestRegistry(h)
		t.Cleanup(func() { _ = reg.Close(context.Background()) })

		const n = 16
		engines := make([]*app.Engine, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				eng, err := reg.Get(context.Background(), testUser)
				assert.NoError(t, err)
				engines[i] = eng
			}()
		}
		wg.Wait()

		for _, eng := range engines {
			assert.Same(t, engines[0], eng)
		}
		assert.Equal(t, 1, h.cache.loadCount())
	})

	t.Run("separate users get separate engines", func(t *testing.T) {
		h := newHarness()
		reg := newTestRegistry(h)
		t.Cleanup(func() { _ = reg.Close(context.Background()) })
		other := domain.MustUserID("0d9b2c1a-5e4f-4a3b-8c7d-9e8f7a6b5c4d")

		a, err := reg.Get(context.Background(), testUser)
		require.NoError(t, err)
		b, err := reg.Get(context.Background(), other)
		require.NoError(t, err)

		assert.NotSame(t, a, b)
		assert.Equal(t, other, b.UserID())
	})

	t.Run("requires identity", func(t *testing.T) {
		reg := newTestRegistry(newHarness())

		_, err := reg.Get(context.Background(), domain.UserID{})

		assert.ErrorIs(t, err, domain.ErrNoIdentity)
	})

	t.Run("cancelled caller does not poison init", func(t *testing.T) {
		h := newHarness()
		reg := newTestRegistry(h)
		t.Cleanup(func() { _ = reg.Close(context.Background()) })
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		eng, err := reg.Get(ctx, testUser)

		require.NoError(t, err)
		assert.NotNil(t, eng)
	})
}

func TestRegistry_Close(t *testing.T) {
	h := newHarness()
	reg := newTestRegistry(h)
	eng, err := reg.Get(context.Background(), testUser)
	require.NoError(t, err)

	require.NoError(t, reg.Close(context.Background()))

	assert.Equal(t, 0, reg.Len())
	assert.ErrorIs(t, eng.Close(context.Background()), domain.ErrEngineClosed, "engine already closed by registry")
	_, err = reg.Get(context.Background(), testUser)
	assert.ErrorIs(t, err, domain.ErrEngineClosed)
	require.NoError(t, reg.Close(context.Background()), "second close is a no-op")
}

func TestRegistry_IdleEngineIsClosedAndReplaced(t *testing.T) {
	h := newHarness()
	cfg := h.registryConfig()
	cfg.IdleTimeout = 20 * time.Millisecond
	reg := app.NewRegistry(cfg)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	first, err := reg.Get(context.Background(), testUser)
	require.NoError(t, err)
	_, err = first.AddStopwatchEntry(context.Background(), app.StopwatchInput{
		Heading: "Focus", StartLocal: wall(2024, 1, 1, 9, 0), EndLocal: wall(2024, 1, 1, 10, 0),
	})
	require.NoError(t, err)
	saves := h.cache.saveCount()

	// Eviction closes the engine, which flushes its snapshot once.
	require.Eventually(t, func() bool {
		reg.CleanUp()
		return reg.Len() == 0 && h.cache.saveCount() == saves+1
	}, 2*time.Second, 10*time.Millisecond)
	err = first.DeleteStopwatchEntry(context.Background(), "id-1")
	assert.True(t, errors.Is(err, domain.ErrEngineClosed))

	second, err := reg.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, first.Stopwatch(), second.Stopwatch(), "state reloads from the flushed snapshot")
}

func TestRegistry_CloseAfterEvictionWaitsForFlush(t *testing.T) {
	h := newHarness()
	cfg := h.registryConfig()
	cfg.IdleTimeout = time.Millisecond
	reg := app.NewRegistry(cfg)

	_, err := reg.Get(context.Background(), testUser)
	require.NoError(t, err)
	saves := h.cache.saveCount()
	time.Sleep(10 * time.Millisecond)
	reg.CleanUp()

	require.NoError(t, reg.Close(context.Background()))

	assert.Equal(t, saves+1, h.cache.saveCount(), "exactly one flush for the evicted engine")
}
