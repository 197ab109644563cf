package app

import (
	"context"
	"fmt"
	"time"

	"github.com/aelexs/time-engine/internal/domain"
)

// AlarmInput describes a new alarm with a local wall-clock trigger.
type AlarmInput struct {
	Title         string
	Source        domain.AlarmSource
	SourceID      string
	TriggerLocal  time.Time
	RepeatPattern *domain.RepeatPattern
	SnoozeMinutes int // 0 selects domain.DefaultSnoozeMinutes
}

// AddAlarm creates an Active alarm. The trigger is read in the engine's
// current timezone.
func (e *Engine) AddAlarm(ctx context.Context, in AlarmInput) (domain.AlarmEntry, error) {
	const op = "add_alarm"
	if err := e.ready(op); err != nil {
		return domain.AlarmEntry{}, err
	}

	tz := e.Timezone()
	snooze := in.SnoozeMinutes
	if snooze == 0 {
		snooze = domain.DefaultSnoozeMinutes
	}

	alarm := domain.AlarmEntry{
		UserID:        e.userID.String(),
		Title:         in.Title,
		Source:        in.Source,
		SourceID:      in.SourceID,
		TriggerUTC:    e.toUTC(ctx, in.TriggerLocal, tz),
		Status:        domain.AlarmStatusActive,
		Timezone:      tz,
		RepeatPattern: in.RepeatPattern.Clone(),
		SnoozeMinutes: snooze,
	}
	if err := alarm.Validate(); err != nil {
		e.recordMutation(ctx, op, "invalid")
		return domain.AlarmEntry{}, fmt.Errorf("%s: %w", op, err)
	}

	var stored domain.AlarmEntry
	err := e.mutate(ctx, op, &e.alarmsMu, func(ctx context.Context, _ string) (func(*domain.Snapshot), error) {
		created, err := e.alarms.Create(ctx, alarm)
		if err != nil {
			return nil, err
		}
		stored = created
		return func(s *domain.Snapshot) {
			s.Alarms = upsertFront(s.Alarms, created.Clone(), alarmID)
		}, nil
	})
	if err != nil {
		return domain.AlarmEntry{}, err
	}
	return stored, nil
}

// UpdateAlarmStatus moves an alarm to status. When newTriggerLocal is set it
// is converted in the engine's current timezone and replaces the trigger.
// The remote row is updated first; the matching local entry is then patched
// and every other entry is left untouched.
func (e *Engine) UpdateAlarmStatus(ctx context.Context, id string, status domain.AlarmStatus, newTriggerLocal *time.Time) error {
	const op = "update_alarm_status"
	if err := e.ready(op); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%s: %w", op, domain.ErrEmptyID)
	}
	if !status.IsValid() {
		e.recordMutation(ctx, op, "invalid")
		return fmt.Errorf("%s: %w: %q", op, domain.ErrInvalidAlarmStatus, status)
	}

	var trigger *time.Time
	if newTriggerLocal != nil {
		t := e.toUTC(ctx, *newTriggerLocal, e.Timezone())
		trigger = &t
	}

	return e.mutate(ctx, op, &e.alarmsMu, func(ctx context.Context, userID string) (func(*domain.Snapshot), error) {
		now := domain.NowUTC(e.clock)
		err := e.alarms.UpdateStatus(ctx, AlarmStatusUpdate{
			UserID:     userID,
			ID:         id,
			Status:     status,
			TriggerUTC: trigger,
			UpdatedAt:  now,
		})
		if err != nil {
			return nil, err
		}
		return func(s *domain.Snapshot) {
			patchByID(s.Alarms, id, alarmID, func(a *domain.AlarmEntry) {
				a.Status = status
				if trigger != nil {
					a.TriggerUTC = *trigger
				}
				a.UpdatedAt = now
			})
		}, nil
	})
}

// DeleteAlarm removes an alarm remotely, then locally.
func (e *Engine) DeleteAlarm(ctx context.Context, id string) error {
	const op = "delete_alarm"
	if err := e.ready(op); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%s: %w", op, domain.ErrEmptyID)
	}

	return e.mutate(ctx, op, &e.alarmsMu, func(ctx context.Context, userID string) (func(*domain.Snapshot), error) {
		if err := e.alarms.Delete(ctx, userID, id); err != nil {
			return nil, err
		}
		return func(s *domain.Snapshot) {
			s.Alarms = removeByID(s.Alarms, id, alarmID)
		}, nil
	})
}
