package app

import (
	"context"
	"slices"
	"time"

	"github.com/aelexs/time-engine/internal/domain"
	"github.com/aelexs/time-engine/internal/tzconv"
)

// Timezone returns the effective zone.
func (e *Engine) Timezone() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Timezone
}

// Snapshot returns a deep copy of the full engine state.
func (e *Engine) Snapshot() domain.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// Stopwatch lists sessions most-recent-first.
func (e *Engine) Stopwatch() []domain.StopwatchEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.state.Stopwatch)
}

// Bedtime lists sleep logs most-recent-first.
func (e *Engine) Bedtime() []domain.BedtimeEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.state.Bedtime)
}

// Alarms lists alarms most-recent-first.
func (e *Engine) Alarms() []domain.AlarmEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.AlarmEntry, len(e.state.Alarms))
	for i, a := range e.state.Alarms {
		out[i] = a.Clone()
	}
	return out
}

// Alarm looks up one alarm by id.
func (e *Engine) Alarm(id string) (domain.AlarmEntry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, a := range e.state.Alarms {
		if a.ID == id {
			return a.Clone(), true
		}
	}
	return domain.AlarmEntry{}, false
}

// FormatWithTZ formats instant in the effective zone.
func (e *Engine) FormatWithTZ(ctx context.Context, instant time.Time, pattern string) tzconv.FormatResult {
	tz := e.Timezone()
	r := e.converter.Format(instant, pattern, tz)
	if r.Degraded {
		e.recordDegraded(ctx, "format", tz)
	}
	return r
}

// ToUserDate expresses instant in the effective zone.
func (e *Engine) ToUserDate(ctx context.Context, instant time.Time) tzconv.Result {
	tz := e.Timezone()
	r := e.converter.FromUTC(instant, tz)
	if r.Degraded {
		e.recordDegraded(ctx, "from_utc", tz)
	}
	return r
}
