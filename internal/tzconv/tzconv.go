// Package tzconv converts between local wall-clock times and UTC instants.
//
// Conversions never fail outright. When a zone cannot be resolved the input
// is returned unshifted and the result is marked Degraded so callers can
// decide whether to warn or retry.
package tzconv

import (
	"fmt"
	"strings"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/aelexs/time-engine/internal/domain"
)

const zoneCacheSize = 1_000

// Result is a converted time plus whether the conversion fell back.
type Result struct {
	Time     time.Time
	Degraded bool
}

// FormatResult is formatted text plus whether the zone shift was skipped.
type FormatResult struct {
	Text     string
	Degraded bool
}

// Converter performs zone conversions. Resolved locations are memoized;
// failed lookups are not. A Converter is safe for concurrent use.
type Converter struct {
	zones *otter.Cache[string, *time.Location]
}

// NewConverter creates a Converter with an empty zone cache.
func NewConverter() *Converter {
	return &Converter{
		zones: otter.Must(&otter.Options[string, *time.Location]{
			MaximumSize: zoneCacheSize,
		}),
	}
}

// LoadLocation resolves an IANA zone identifier.
func (c *Converter) LoadLocation(tz string) (*time.Location, error) {
	name := strings.TrimSpace(tz)
	if name == "" {
		return nil, fmt.Errorf("%w: empty zone", domain.ErrInvalidTimezone)
	}
	if loc, ok := c.zones.GetIfPresent(name); ok {
		return loc, nil
	}

	// time.LoadLocation treats "Local" as the host zone; only IANA names are accepted here.
	if name == "Local" {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTimezone, name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTimezone, name)
	}
	c.zones.Set(name, loc)
	return loc, nil
}

// IsValid reports whether tz resolves to a known zone.
func (c *Converter) IsValid(tz string) bool {
	_, err := c.LoadLocation(tz)
	return err == nil
}

// ToUTC interprets the wall-clock fields of local as a time in tz and
// returns the corresponding UTC instant. The location attached to local is
// ignored. Wall times inside a DST gap resolve the way time.Date does.
func (c *Converter) ToUTC(local time.Time, tz string) Result {
	loc, err := c.LoadLocation(tz)
	if err != nil {
		return Result{Time: local, Degraded: true}
	}
	y, mo, d := local.Date()
	h, mi, s := local.Clock()
	return Result{Time: time.Date(y, mo, d, h, mi, s, local.Nanosecond(), loc).UTC()}
}

// FromUTC expresses an instant in tz.
func (c *Converter) FromUTC(utc time.Time, tz string) Result {
	loc, err := c.LoadLocation(tz)
	if err != nil {
		return Result{Time: utc, Degraded: true}
	}
	return Result{Time: utc.In(loc)}
}

// Format renders instant in tz using a date-fns style pattern such as
// "yyyy-MM-dd HH:mm" or "EEE, MMM d 'at' h:mm a".
func (c *Converter) Format(instant time.Time, pattern, tz string) FormatResult {
	p := CompilePattern(pattern)
	loc, err := c.LoadLocation(tz)
	if err != nil {
		return FormatResult{Text: p.Format(instant), Degraded: true}
	}
	return FormatResult{Text: p.Format(instant.In(loc))}
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseLocal parses an ISO local date-time without an offset. The returned
// time carries the wall-clock fields in UTC and is meant to be passed to ToUTC.
func ParseLocal(s string) (time.Time, error) {
	raw := strings.TrimSpace(s)
	for _, layout := range localLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse local time %q: %w", s, domain.ErrInvalidInput)
}
