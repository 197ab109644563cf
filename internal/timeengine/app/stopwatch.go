package app

import (
	"context"
	"fmt"
	"time"

	"github.com/aelexs/time-engine/internal/domain"
)

// StopwatchInput is a completed session in local wall-clock time. Only the
// wall-clock fields of the times are used; they are read in the engine's
// current timezone.
type StopwatchInput struct {
	Heading    string
	Purpose    string
	StartLocal time.Time
	EndLocal   time.Time
}

// AddStopwatchEntry converts the session to UTC, writes it remotely and, on
// success, prepends the stored entry.
func (e *Engine) AddStopwatchEntry(ctx context.Context, in StopwatchInput) (domain.StopwatchEntry, error) {
	const op = "add_stopwatch"
	if err := e.ready(op); err != nil {
		return domain.StopwatchEntry{}, err
	}

	tz := e.Timezone()
	start := e.toUTC(ctx, in.StartLocal, tz)
	end := e.toUTC(ctx, in.EndLocal, tz)

	entry := domain.StopwatchEntry{
		UserID:     e.userID.String(),
		Heading:    in.Heading,
		Purpose:    in.Purpose,
		StartUTC:   start,
		EndUTC:     end,
		DurationMs: domain.DurationMs(start, end),
		Timezone:   tz,
	}
	if err := entry.Validate(); err != nil {
		e.recordMutation(ctx, op, "invalid")
		return domain.StopwatchEntry{}, fmt.Errorf("%s: %w", op, err)
	}

	var stored domain.StopwatchEntry
	err := e.mutate(ctx, op, &e.stopwatchMu, func(ctx context.Context, _ string) (func(*domain.Snapshot), error) {
		created, err := e.stopwatch.Create(ctx, entry)
		if err != nil {
			return nil, err
		}
		stored = created
		return func(s *domain.Snapshot) {
			s.Stopwatch = upsertFront(s.Stopwatch, created, stopwatchID)
		}, nil
	})
	if err != nil {
		return domain.StopwatchEntry{}, err
	}
	return stored, nil
}

// DeleteStopwatchEntry removes a session remotely, then locally.
func (e *Engine) DeleteStopwatchEntry(ctx context.Context, id string) error {
	const op = "delete_stopwatch"
	if err := e.ready(op); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%s: %w", op, domain.ErrEmptyID)
	}

	return e.mutate(ctx, op, &e.stopwatchMu, func(ctx context.Context, userID string) (func(*domain.Snapshot), error) {
		if err := e.stopwatch.Delete(ctx, userID, id); err != nil {
			return nil, err
		}
		return func(s *domain.Snapshot) {
			s.Stopwatch = removeByID(s.Stopwatch, id, stopwatchID)
		}, nil
	})
}
