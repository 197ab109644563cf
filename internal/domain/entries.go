package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// StopwatchEntry is one completed stopwatch session. Entries are append-only:
// once written they are never updated, only deleted.
type StopwatchEntry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Heading    string    `json:"heading"`
	Purpose    string    `json:"purpose"`
	StartUTC   time.Time `json:"start_time_utc"`
	EndUTC     time.Time `json:"end_time_utc"`
	DurationMs int64     `json:"duration_ms"`
	Timezone   string    `json:"timezone"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the entry invariants that must hold before it is persisted.
func (e StopwatchEntry) Validate() error {
	if strings.TrimSpace(e.Heading) == "" {
		return fmt.Errorf("stopwatch heading is required: %w", ErrInvalidInput)
	}
	if len(e.Heading) > MaxHeadingLength {
		return fmt.Errorf("stopwatch heading exceeds %d bytes: %w", MaxHeadingLength, ErrInvalidInput)
	}
	if len(e.Purpose) > MaxNotesLength {
		return fmt.Errorf("stopwatch purpose exceeds %d bytes: %w", MaxNotesLength, ErrInvalidInput)
	}
	if e.StartUTC.IsZero() || e.EndUTC.IsZero() {
		return fmt.Errorf("stopwatch start and end are required: %w", ErrInvalidInput)
	}
	if e.EndUTC.Before(e.StartUTC) {
		return fmt.Errorf("stopwatch end precedes start: %w", ErrInvalidInput)
	}
	if e.DurationMs != DurationMs(e.StartUTC, e.EndUTC) {
		return fmt.Errorf("stopwatch duration does not match its bounds: %w", ErrInvalidInput)
	}
	return nil
}

// BedtimeEntry is one sleep log. DateLabel is the calendar date of the
// sleep instant as observed in Timezone.
type BedtimeEntry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	SleepUTC   time.Time `json:"sleep_time_utc"`
	WakeUTC    time.Time `json:"wake_time_utc"`
	DurationMs int64     `json:"duration_ms"`
	DateLabel  string    `json:"date_label"`
	Timezone   string    `json:"timezone"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the entry invariants that must hold before it is persisted.
// A wake time at or before the sleep time is rejected: cross-midnight sessions
// must be rolled forward by the caller (see RollWakeForward).
func (e BedtimeEntry) Validate() error {
	if e.SleepUTC.IsZero() || e.WakeUTC.IsZero() {
		return fmt.Errorf("bedtime sleep and wake are required: %w", ErrInvalidInput)
	}
	if !e.WakeUTC.After(e.SleepUTC) {
		return fmt.Errorf("bedtime wake must be after sleep: %w", ErrInvalidInput)
	}
	if _, err := time.Parse(DateLabelLayout, e.DateLabel); err != nil {
		return fmt.Errorf("bedtime date label %q: %w", e.DateLabel, ErrInvalidInput)
	}
	if len(e.Notes) > MaxNotesLength {
		return fmt.Errorf("bedtime notes exceed %d bytes: %w", MaxNotesLength, ErrInvalidInput)
	}
	if e.DurationMs != DurationMs(e.SleepUTC, e.WakeUTC) {
		return fmt.Errorf("bedtime duration does not match its bounds: %w", ErrInvalidInput)
	}
	return nil
}

// RepeatPattern describes how an alarm recurs. The engine stores it as-is and
// never expands it into occurrences.
type RepeatPattern struct {
	Frequency  string `json:"frequency"`
	Interval   int    `json:"interval,omitempty"`
	DaysOfWeek []int  `json:"days_of_week,omitempty"`
}

// Clone returns a deep copy of p. A nil pattern clones to nil.
func (p *RepeatPattern) Clone() *RepeatPattern {
	if p == nil {
		return nil
	}
	out := *p
	if len(p.DaysOfWeek) == 0 {
		out.DaysOfWeek = nil
	} else {
		out.DaysOfWeek = slices.Clone(p.DaysOfWeek)
	}
	return &out
}

// AlarmEntry is an alarm record. Alarms never fire inside the engine; Status
// is plain data that callers move between states.
type AlarmEntry struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	Title         string         `json:"title"`
	Source        AlarmSource    `json:"source_type"`
	SourceID      string         `json:"source_id,omitempty"`
	TriggerUTC    time.Time      `json:"trigger_time_utc"`
	Status        AlarmStatus    `json:"status"`
	Timezone      string         `json:"timezone"`
	RepeatPattern *RepeatPattern `json:"repeat_pattern,omitempty"`
	SnoozeMinutes int            `json:"snooze_duration_minutes"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Validate checks the alarm invariants that must hold before it is persisted.
func (a AlarmEntry) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("alarm title is required: %w", ErrInvalidInput)
	}
	if len(a.Title) > MaxHeadingLength {
		return fmt.Errorf("alarm title exceeds %d bytes: %w", MaxHeadingLength, ErrInvalidInput)
	}
	if !a.Source.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidAlarmSource, a.Source)
	}
	if !a.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidAlarmStatus, a.Status)
	}
	if a.TriggerUTC.IsZero() {
		return fmt.Errorf("alarm trigger time is required: %w", ErrInvalidInput)
	}
	if a.SnoozeMinutes < 0 {
		return fmt.Errorf("alarm snooze duration is negative: %w", ErrInvalidInput)
	}
	return nil
}

// Clone returns a deep copy of a.
func (a AlarmEntry) Clone() AlarmEntry {
	a.RepeatPattern = a.RepeatPattern.Clone()
	return a
}

// DurationMs is the exact millisecond distance from start to end.
func DurationMs(start, end time.Time) int64 {
	return end.Sub(start).Milliseconds()
}

// RollWakeForward moves a wake wall-clock time forward by one calendar day
// when it is not after the sleep time, so a 23:30 → 06:15 night entered on a
// single date becomes a 6h45m session. Other inputs are returned unchanged.
func RollWakeForward(sleep, wake time.Time) time.Time {
	if wake.After(sleep) {
		return wake
	}
	return wake.AddDate(0, 0, 1)
}
