package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/aelexs/time-engine/internal/domain"
	"github.com/aelexs/time-engine/internal/observability"
	"github.com/aelexs/time-engine/internal/tzconv"
)

// AnonymousCacheKey is the snapshot slot used by an engine without a user identity.
const AnonymousCacheKey = "anonymous"

// EngineConfig holds the dependencies for an Engine.
type EngineConfig struct {
	// UserID is the authenticated owner. A zero UserID runs the engine
	// without identity: remote reads are skipped and mutations fail with
	// domain.ErrNoIdentity.
	UserID domain.UserID

	Stopwatch   StopwatchStore
	Bedtime     BedtimeStore
	Alarms      AlarmStore
	Preferences *PreferenceService
	Cache       SnapshotCache
	Converter   *tzconv.Converter
	Clock       domain.Clock
	Logger      *slog.Logger
}

// Engine is the per-user time engine. It owns the effective timezone and the
// three collections, and writes every mutation through the remote store
// before applying it locally and re-persisting the snapshot.
//
// Operations on the same collection run in issue order. Operations on
// different collections may interleave. An Engine is safe for concurrent use.
type Engine struct {
	userID    domain.UserID
	cacheKey  string
	stopwatch StopwatchStore
	bedtime   BedtimeStore
	alarms    AlarmStore
	prefs     *PreferenceService
	cache     SnapshotCache
	converter *tzconv.Converter
	clock     domain.Clock
	logger    *slog.Logger

	// Held across write-then-mutate, one per collection.
	tzMu        sync.Mutex
	stopwatchMu sync.Mutex
	bedtimeMu   sync.Mutex
	alarmsMu    sync.Mutex

	initMu    sync.Mutex
	persistMu sync.Mutex

	mu          sync.RWMutex
	state       domain.Snapshot
	initialized bool
	closed      bool
}

// NewEngine creates an Engine holding the built-in defaults. Call Init before use.
func NewEngine(cfg EngineConfig) *Engine {
	key := AnonymousCacheKey
	if !cfg.UserID.IsZero() {
		key = cfg.UserID.String()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = domain.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		userID:    cfg.UserID,
		cacheKey:  key,
		stopwatch: cfg.Stopwatch,
		bedtime:   cfg.Bedtime,
		alarms:    cfg.Alarms,
		prefs:     cfg.Preferences,
		cache:     cfg.Cache,
		converter: cfg.Converter,
		clock:     clock,
		logger:    logger.With(slog.String("cache_key", key)),
		state:     domain.EmptySnapshot(),
	}
}

// Init loads the cached snapshot, then, when a user identity is present,
// applies the stored timezone preference and seeds the collections from the
// remote store. Remote read failures keep the cached data. When neither path
// establishes a timezone the detected host zone is adopted without being
// written back. Init is idempotent.
func (e *Engine) Init(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "engine.init")
	defer span.End()

	e.initMu.Lock()
	defer e.initMu.Unlock()

	e.mu.RLock()
	closed, initialized := e.closed, e.initialized
	e.mu.RUnlock()
	if closed {
		return fmt.Errorf("init: %w", domain.ErrEngineClosed)
	}
	if initialized {
		return nil
	}

	logger := observability.WithTraceID(ctx, e.logger)

	state := domain.EmptySnapshot()
	established := false

	cached, err := e.cache.Load(ctx, e.cacheKey)
	switch {
	case err == nil:
		state = cached.Clone()
		if cached.Timezone != "" && e.converter.IsValid(cached.Timezone) {
			established = true
		} else {
			state.Timezone = domain.DefaultTimezone
		}
	case errors.Is(err, domain.ErrNotFound):
	default:
		logger.WarnContext(ctx, "snapshot cache unavailable; starting from defaults",
			slog.String("error", err.Error()),
		)
	}

	if !e.userID.IsZero() {
		if e.seedFromRemote(ctx, &state) {
			established = true
		}
	}

	if !established {
		state.Timezone = e.detectTimezone()
	}

	e.mu.Lock()
	e.state = state
	e.initialized = true
	e.mu.Unlock()

	if err := e.persist(ctx); err != nil {
		logger.WarnContext(ctx, "snapshot cache write failed",
			slog.String("error", err.Error()),
		)
	}

	logger.InfoContext(ctx, "time engine initialized",
		slog.String("timezone", state.Timezone),
		slog.Int("stopwatch", len(state.Stopwatch)),
		slog.Int("bedtime", len(state.Bedtime)),
		slog.Int("alarms", len(state.Alarms)),
	)
	return nil
}

// seedFromRemote reads the preference and the three collections concurrently.
// It reports whether a stored preference was applied.
func (e *Engine) seedFromRemote(ctx context.Context, state *domain.Snapshot) bool {
	logger := observability.WithTraceID(ctx, e.logger)
	uid := e.userID.String()

	var (
		g         errgroup.Group
		pref      string
		prefOK    bool
		stopwatch []domain.StopwatchEntry
		bedtime   []domain.BedtimeEntry
		alarms    []domain.AlarmEntry
		swErr     error
		btErr     error
		alarmsErr error
	)

	if e.prefs != nil {
		g.Go(func() error {
			pref, prefOK = e.prefs.Get(ctx, uid)
			return nil
		})
	}
	g.Go(func() error {
		stopwatch, swErr = e.stopwatch.ListByUser(ctx, uid)
		return nil
	})
	g.Go(func() error {
		bedtime, btErr = e.bedtime.ListByUser(ctx, uid)
		return nil
	})
	g.Go(func() error {
		alarms, alarmsErr = e.alarms.ListByUser(ctx, uid)
		return nil
	})
	_ = g.Wait()

	if prefOK {
		state.Timezone = pref
	}

	logReadFailure := func(collection string, err error) {
		logger.WarnContext(ctx, "remote read failed; keeping cached entries",
			slog.String("collection", collection),
			slog.String("error", err.Error()),
		)
	}
	if swErr == nil {
		state.Stopwatch = newestFirst(stopwatch, stopwatchCreated)
	} else {
		logReadFailure("stopwatch", swErr)
	}
	if btErr == nil {
		state.Bedtime = newestFirst(bedtime, bedtimeCreated)
	} else {
		logReadFailure("bedtime", btErr)
	}
	if alarmsErr == nil {
		state.Alarms = newestFirst(alarms, alarmCreated)
	} else {
		logReadFailure("alarms", alarmsErr)
	}

	return prefOK
}

func (e *Engine) detectTimezone() string {
	if e.prefs != nil {
		return e.prefs.DetectSystemTimezone()
	}
	tz, _ := e.converter.DetectSystemTimezone()
	return tz
}

// Close flushes the snapshot after in-flight mutations finish. Later
// mutations and a second Close return domain.ErrEngineClosed.
func (e *Engine) Close(ctx context.Context) error {
	// Waits for an in-flight Init so it cannot publish state after Close.
	e.initMu.Lock()
	defer e.initMu.Unlock()

	for _, mu := range e.collectionLocks() {
		mu.Lock()
	}
	e.mu.Lock()
	closed, initialized := e.closed, e.initialized
	e.closed = true
	e.mu.Unlock()
	for _, mu := range e.collectionLocks() {
		mu.Unlock()
	}

	if closed {
		return fmt.Errorf("close: %w", domain.ErrEngineClosed)
	}
	// An engine that never loaded must not overwrite the cached slot with defaults.
	if !initialized {
		return nil
	}
	if err := e.persist(ctx); err != nil {
		return fmt.Errorf("close: flush snapshot: %w", err)
	}
	return nil
}

func (e *Engine) collectionLocks() []*sync.Mutex {
	return []*sync.Mutex{&e.tzMu, &e.stopwatchMu, &e.bedtimeMu, &e.alarmsMu}
}

// UserID returns the engine owner, zero when running without identity.
func (e *Engine) UserID() domain.UserID {
	return e.userID
}

// SetTimezone validates tz, stores it as the user's preference and adopts it.
func (e *Engine) SetTimezone(ctx context.Context, tz string) error {
	const op = "set_timezone"
	if err := e.ready(op); err != nil {
		return err
	}
	if e.prefs == nil {
		return fmt.Errorf("%s: preference store not configured: %w", op, domain.ErrUnavailable)
	}
	if _, err := e.converter.LoadLocation(tz); err != nil {
		e.recordMutation(ctx, op, "invalid")
		return fmt.Errorf("%s: %w", op, err)
	}

	return e.mutate(ctx, op, &e.tzMu, func(ctx context.Context, userID string) (func(*domain.Snapshot), error) {
		if err := e.prefs.Set(ctx, userID, tz); err != nil {
			return nil, err
		}
		return func(s *domain.Snapshot) { s.Timezone = tz }, nil
	})
}

// ready rejects mutations without identity or after Close.
func (e *Engine) ready(op string) error {
	if e.userID.IsZero() {
		e.recordMutation(context.Background(), op, "no_identity")
		return fmt.Errorf("%s: %w", op, domain.ErrNoIdentity)
	}
	if e.isClosed() {
		return fmt.Errorf("%s: %w", op, domain.ErrEngineClosed)
	}
	return nil
}

// remoteWrite performs one remote call and returns the state change to apply
// when it succeeds.
type remoteWrite func(ctx context.Context, userID string) (func(*domain.Snapshot), error)

// mutate runs a write-then-mutate step under lock. When the remote write
// fails nothing changes locally. On success the change is applied and the
// full snapshot is re-persisted.
func (e *Engine) mutate(ctx context.Context, op string, lock *sync.Mutex, write remoteWrite) error {
	ctx, span := tracer.Start(ctx, "engine."+op)
	defer span.End()

	logger := observability.WithTraceID(ctx, e.logger)

	lock.Lock()
	defer lock.Unlock()

	if e.isClosed() {
		return fmt.Errorf("%s: %w", op, domain.ErrEngineClosed)
	}

	apply, err := write(ctx, e.userID.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "remote write failed; state unchanged",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		e.recordMutation(ctx, op, "remote_error")
		return fmt.Errorf("%s: %w", op, err)
	}

	e.mu.Lock()
	apply(&e.state)
	e.mu.Unlock()

	if err := e.persist(context.WithoutCancel(ctx)); err != nil {
		logger.WarnContext(ctx, "snapshot cache write failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		e.recordMutation(ctx, op, "cache_error")
		return nil
	}

	e.recordMutation(ctx, op, "ok")
	return nil
}

// persist writes the current state to the cache slot. Writes are serialized
// and each one copies the state at write time, so the last write always
// reflects every applied change.
func (e *Engine) persist(ctx context.Context) error {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	return e.cache.Save(ctx, e.cacheKey, e.Snapshot())
}

func (e *Engine) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

func (e *Engine) recordMutation(ctx context.Context, op, result string) {
	mutationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("result", result),
	))
}

// toUTC converts a local wall-clock time in tz to a persisted instant.
func (e *Engine) toUTC(ctx context.Context, local time.Time, tz string) time.Time {
	r := e.converter.ToUTC(local, tz)
	if r.Degraded {
		e.recordDegraded(ctx, "to_utc", tz)
	}
	return domain.NormalizeInstant(r.Time)
}

func (e *Engine) recordDegraded(ctx context.Context, conversion, tz string) {
	conversionsDegradedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("conversion", conversion),
	))
	observability.WithTraceID(ctx, e.logger).WarnContext(ctx, "timezone conversion degraded",
		slog.String("conversion", conversion),
		slog.String("timezone", tz),
	)
}
