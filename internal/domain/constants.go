package domain

import "time"

// Engine defaults.
const (
	// DefaultTimezone is the zone used when neither a stored preference,
	// a cached snapshot nor system detection yields one.
	DefaultTimezone = "UTC"

	// DefaultSnoozeMinutes is applied when an alarm is created without an
	// explicit snooze duration.
	DefaultSnoozeMinutes = 10

	// MaxHeadingLength bounds stopwatch headings and alarm titles.
	MaxHeadingLength = 200

	// MaxNotesLength bounds free-text purpose and notes fields.
	MaxNotesLength = 4000

	// DefaultMaxEngines bounds the engines a registry keeps in memory.
	DefaultMaxEngines = 10_000

	// DefaultEngineIdleTimeout closes an engine not requested for this long.
	DefaultEngineIdleTimeout = 30 * time.Minute
)

// Timeout contracts for infrastructure calls.
const (
	DynamoDBTimeout = 5 * time.Second // Max time for DynamoDB operations
	RedisTimeout    = 2 * time.Second // Max time for Redis operations
)

// Graceful shutdown budget.
const (
	GracefulShutdownTimeout = 30 * time.Second
	ShutdownDrainDelay      = 2 * time.Second
	ShutdownHTTPTimeout     = 15 * time.Second
	ShutdownEngineTimeout   = 5 * time.Second
	ShutdownOTELTimeout     = 5 * time.Second
)

// AlarmStatus is the closed set of alarm states. Any state may move to any
// other; the engine imposes no transition table.
type AlarmStatus string

const (
	AlarmStatusActive    AlarmStatus = "Active"
	AlarmStatusSnoozed   AlarmStatus = "Snoozed"
	AlarmStatusCompleted AlarmStatus = "Completed"
	AlarmStatusDisabled  AlarmStatus = "Disabled"
)

// IsValid reports whether s is one of the known alarm states.
func (s AlarmStatus) IsValid() bool {
	switch s {
	case AlarmStatusActive, AlarmStatusSnoozed, AlarmStatusCompleted, AlarmStatusDisabled:
		return true
	default:
		return false
	}
}

// ParseAlarmStatus converts a wire value into an AlarmStatus.
func ParseAlarmStatus(raw string) (AlarmStatus, error) {
	s := AlarmStatus(raw)
	if !s.IsValid() {
		return "", ErrInvalidAlarmStatus
	}
	return s, nil
}

// AlarmSource identifies what an alarm was created from.
type AlarmSource string

const (
	AlarmSourcePersonalTask     AlarmSource = "Personal Task"
	AlarmSourceProfessionalTask AlarmSource = "Professional Task"
	AlarmSourceNote             AlarmSource = "Note"
	AlarmSourceCustom           AlarmSource = "Custom"
)

// IsValid reports whether s is one of the known alarm sources.
func (s AlarmSource) IsValid() bool {
	switch s {
	case AlarmSourcePersonalTask, AlarmSourceProfessionalTask, AlarmSourceNote, AlarmSourceCustom:
		return true
	default:
		return false
	}
}

// ParseAlarmSource converts a wire value into an AlarmSource.
func ParseAlarmSource(raw string) (AlarmSource, error) {
	s := AlarmSource(raw)
	if !s.IsValid() {
		return "", ErrInvalidAlarmSource
	}
	return s, nil
}
