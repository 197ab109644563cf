package domain

import (
	"fmt"
	"time"
)

// InstantLayout is the wire format for every persisted UTC instant:
// ISO-8601 with millisecond precision and a literal Z suffix.
const InstantLayout = "2006-01-02T15:04:05.000Z"

// DateLabelLayout is the calendar-date format used for day-bucketed statistics.
const DateLabelLayout = "2006-01-02"

// Clock provides the current time. Implementations may be real (production)
// or deterministic (testing).
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// RealClock implements Clock using the system clock.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time {
	return time.Now()
}

// NowUTC returns the clock's current instant normalized for persistence.
func NowUTC(c Clock) time.Time {
	return NormalizeInstant(c.Now())
}

// NormalizeInstant converts t to UTC, strips the monotonic reading and
// truncates to millisecond precision, the precision of InstantLayout.
func NormalizeInstant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// FormatInstant renders t as an ISO-8601 UTC string, e.g. "2024-01-01T14:00:00.000Z".
func FormatInstant(t time.Time) string {
	return t.UTC().Format(InstantLayout)
}

// ParseInstant parses an ISO-8601 instant. Offsets other than Z are accepted
// and converted; the result is normalized.
func ParseInstant(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse instant %q: %w", raw, ErrInvalidInput)
	}
	return NormalizeInstant(t), nil
}

// FromMillis converts epoch milliseconds to time.Time in UTC.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Ensure RealClock implements Clock at compile time.
var _ Clock = RealClock{}
