// Package app holds the time engine: the per-user controller that owns the
// timezone and the stopwatch, bedtime and alarm collections, and the stores
// it writes through.
package app

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/time-engine/internal/domain"
	"github.com/aelexs/time-engine/internal/observability"
)

var tracer = observability.Tracer("app")

var (
	mutationsTotal           metric.Int64Counter
	conversionsDegradedTotal metric.Int64Counter
	enginesActive            metric.Int64UpDownCounter
)

func init() {
	m := observability.Meter("app")

	mutationsTotal, _ = m.Int64Counter("time_engine_mutations_total",
		metric.WithDescription("Total engine mutations by operation and result"))
	conversionsDegradedTotal, _ = m.Int64Counter("time_engine_conversion_degraded_total",
		metric.WithDescription("Total conversions that fell back to unshifted values"))
	enginesActive, _ = m.Int64UpDownCounter("time_engine_engines_active",
		metric.WithDescription("Initialized engines held by the registry"))
}

// StopwatchStore persists stopwatch sessions. Create assigns the entry ID and
// CreatedAt and returns the stored row.
type StopwatchStore interface {
	Create(ctx context.Context, entry domain.StopwatchEntry) (domain.StopwatchEntry, error)
	ListByUser(ctx context.Context, userID string) ([]domain.StopwatchEntry, error)
	Delete(ctx context.Context, userID, id string) error
}

// BedtimeStore persists sleep logs. Create assigns the entry ID and CreatedAt.
type BedtimeStore interface {
	Create(ctx context.Context, entry domain.BedtimeEntry) (domain.BedtimeEntry, error)
	ListByUser(ctx context.Context, userID string) ([]domain.BedtimeEntry, error)
	Delete(ctx context.Context, userID, id string) error
}

// AlarmStatusUpdate holds the mutable fields of an alarm.
type AlarmStatusUpdate struct {
	UserID     string
	ID         string
	Status     domain.AlarmStatus
	TriggerUTC *time.Time // nil leaves the trigger unchanged
	UpdatedAt  time.Time
}

// AlarmStore persists alarms. Create assigns the ID and both timestamps.
// UpdateStatus and Delete return domain.ErrNotFound when the alarm does not
// exist or belongs to another user.
type AlarmStore interface {
	Create(ctx context.Context, alarm domain.AlarmEntry) (domain.AlarmEntry, error)
	ListByUser(ctx context.Context, userID string) ([]domain.AlarmEntry, error)
	UpdateStatus(ctx context.Context, update AlarmStatusUpdate) error
	Delete(ctx context.Context, userID, id string) error
}

// PreferenceStore persists one timezone preference per user. Get returns
// domain.ErrNotFound when the user has never chosen a zone.
type PreferenceStore interface {
	Get(ctx context.Context, userID string) (string, error)
	Put(ctx context.Context, userID, timezone string) error
}

// SnapshotCache is the local durable slot holding one engine snapshot per key.
// Load returns domain.ErrNotFound for an empty slot. Save overwrites the slot.
type SnapshotCache interface {
	Load(ctx context.Context, key string) (domain.Snapshot, error)
	Save(ctx context.Context, key string, snap domain.Snapshot) error
}
