package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"
	"golang.org/x/sync/singleflight"

	"github.com/aelexs/time-engine/internal/domain"
	"github.com/aelexs/time-engine/internal/tzconv"
)

// RegistryConfig holds the shared dependencies handed to every Engine.
type RegistryConfig struct {
	Stopwatch   StopwatchStore
	Bedtime     BedtimeStore
	Alarms      AlarmStore
	Preferences *PreferenceService
	Cache       SnapshotCache
	Converter   *tzconv.Converter
	Clock       domain.Clock
	Logger      *slog.Logger

	// MaxEngines bounds live engines; 0 selects domain.DefaultMaxEngines.
	MaxEngines int
	// IdleTimeout closes engines not requested for this long; 0 selects
	// domain.DefaultEngineIdleTimeout.
	IdleTimeout time.Duration
}

// Registry holds one initialized Engine per user. Engines idle past the
// timeout, or pushed out by the size bound, are closed and flushed to the
// snapshot cache; the next Get for that user initializes a fresh one.
type Registry struct {
	cfg     RegistryConfig
	group   singleflight.Group
	engines *otter.Cache[string, *Engine]
	// evictions tracks in-flight closes of evicted engines.
	evictions sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxEngines <= 0 {
		cfg.MaxEngines = domain.DefaultMaxEngines
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = domain.DefaultEngineIdleTimeout
	}

	r := &Registry{cfg: cfg}
	r.engines = otter.Must(&otter.Options[string, *Engine]{
		MaximumSize:      cfg.MaxEngines,
		ExpiryCalculator: otter.ExpiryAccessing[string, *Engine](cfg.IdleTimeout),
		OnDeletion:       r.onDeletion,
		Executor:         func(fn func()) { r.evictions.Go(fn) },
	})
	return r
}

// onDeletion closes engines the cache dropped on its own. Explicit
// invalidation only happens in Close, which closes engines itself.
func (r *Registry) onDeletion(e otter.DeletionEvent[string, *Engine]) {
	if !e.WasEvicted() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), domain.ShutdownEngineTimeout)
	defer cancel()

	if err := e.Value.Close(ctx); err != nil && !errors.Is(err, domain.ErrEngineClosed) {
		r.cfg.Logger.WarnContext(ctx, "evicted engine flush failed",
			slog.String("user_id", e.Key),
			slog.Any("cause", e.Cause),
			slog.String("error", err.Error()),
		)
	}
	enginesActive.Add(ctx, -1)
}

// Get returns the user's Engine, creating and initializing it on first use.
// Concurrent first calls for the same user share a single Init.
func (r *Registry) Get(ctx context.Context, userID domain.UserID) (*Engine, error) {
	if userID.IsZero() {
		return nil, domain.ErrNoIdentity
	}
	key := userID.String()

	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, domain.ErrEngineClosed
	}
	if eng, ok := r.engines.GetIfPresent(key); ok {
		return eng, nil
	}

	// The shared Init must not be cancelled by whichever caller arrived first.
	initCtx := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(key, func() (any, error) {
		if existing, ok := r.engines.GetIfPresent(key); ok {
			return existing, nil
		}

		eng := NewEngine(EngineConfig{
			UserID:      userID,
			Stopwatch:   r.cfg.Stopwatch,
			Bedtime:     r.cfg.Bedtime,
			Alarms:      r.cfg.Alarms,
			Preferences: r.cfg.Preferences,
			Cache:       r.cfg.Cache,
			Converter:   r.cfg.Converter,
			Clock:       r.cfg.Clock,
			Logger:      r.cfg.Logger.With(slog.String("user_id", key)),
		})
		if err := eng.Init(initCtx); err != nil {
			return nil, fmt.Errorf("init engine: %w", err)
		}

		r.mu.RLock()
		defer r.mu.RUnlock()
		if r.closed {
			_ = eng.Close(initCtx)
			return nil, domain.ErrEngineClosed
		}
		r.engines.Set(key, eng)
		enginesActive.Add(initCtx, 1)
		return eng, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Engine), nil
}

// Len returns the number of live engines.
func (r *Registry) Len() int {
	return r.engines.EstimatedSize()
}

// CleanUp runs pending expiry and size eviction now instead of on the next
// cache access.
func (r *Registry) CleanUp() {
	r.engines.CleanUp()
}

// Close closes every engine and waits for evicted engines to finish
// flushing. Later Get calls return domain.ErrEngineClosed.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	var errs []error
	for key, eng := range r.engines.All() {
		if err := eng.Close(ctx); err != nil && !errors.Is(err, domain.ErrEngineClosed) {
			errs = append(errs, fmt.Errorf("close engine %s: %w", key, err))
		}
		enginesActive.Add(ctx, -1)
	}
	r.engines.InvalidateAll()
	r.evictions.Wait()
	return errors.Join(errs...)
}
