package app

import (
	"context"
	"fmt"
	"time"

	"github.com/aelexs/time-engine/internal/domain"
)

// BedtimeInput is a sleep log in local wall-clock time. Cross-midnight
// sessions must already have the wake time rolled forward; see
// domain.RollWakeForward.
type BedtimeInput struct {
	SleepLocal time.Time
	WakeLocal  time.Time
	Notes      string
}

// AddBedtimeEntry converts the log to UTC, labels it with the local sleep
// date, writes it remotely and, on success, prepends the stored entry.
func (e *Engine) AddBedtimeEntry(ctx context.Context, in BedtimeInput) (domain.BedtimeEntry, error) {
	const op = "add_bedtime"
	if err := e.ready(op); err != nil {
		return domain.BedtimeEntry{}, err
	}

	tz := e.Timezone()
	sleep := e.toUTC(ctx, in.SleepLocal, tz)
	wake := e.toUTC(ctx, in.WakeLocal, tz)

	entry := domain.BedtimeEntry{
		UserID:     e.userID.String(),
		SleepUTC:   sleep,
		WakeUTC:    wake,
		DurationMs: domain.DurationMs(sleep, wake),
		DateLabel:  domain.DateLabel(in.SleepLocal),
		Timezone:   tz,
		Notes:      in.Notes,
	}
	if err := entry.Validate(); err != nil {
		e.recordMutation(ctx, op, "invalid")
		return domain.BedtimeEntry{}, fmt.Errorf("%s: %w", op, err)
	}

	var stored domain.BedtimeEntry
	err := e.mutate(ctx, op, &e.bedtimeMu, func(ctx context.Context, _ string) (func(*domain.Snapshot), error) {
		created, err := e.bedtime.Create(ctx, entry)
		if err != nil {
			return nil, err
		}
		stored = created
		return func(s *domain.Snapshot) {
			s.Bedtime = upsertFront(s.Bedtime, created, bedtimeID)
		}, nil
	})
	if err != nil {
		return domain.BedtimeEntry{}, err
	}
	return stored, nil
}

// DeleteBedtimeEntry removes a log remotely, then locally.
func (e *Engine) DeleteBedtimeEntry(ctx context.Context, id string) error {
	const op = "delete_bedtime"
	if err := e.ready(op); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%s: %w", op, domain.ErrEmptyID)
	}

	return e.mutate(ctx, op, &e.bedtimeMu, func(ctx context.Context, userID string) (func(*domain.Snapshot), error) {
		if err := e.bedtime.Delete(ctx, userID, id); err != nil {
			return nil, err
		}
		return func(s *domain.Snapshot) {
			s.Bedtime = removeByID(s.Bedtime, id, bedtimeID)
		}, nil
	})
}

// BedtimeStats buckets the in-memory log by date label, newest first.
// days <= 0 returns every bucket.
func (e *Engine) BedtimeStats(days int) []domain.DayStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return domain.SummarizeBedtime(e.state.Bedtime, days)
}
