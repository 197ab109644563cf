package domain

import (
	"slices"
	"sort"
	"time"
)

// Snapshot is the complete engine state persisted to the local cache.
// Collections are ordered most-recent-first.
type Snapshot struct {
	Timezone  string           `json:"timezone"`
	Stopwatch []StopwatchEntry `json:"stopwatch"`
	Bedtime   []BedtimeEntry   `json:"bedtime"`
	Alarms    []AlarmEntry     `json:"alarms"`
}

// EmptySnapshot returns the built-in defaults: UTC and empty collections.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Timezone:  DefaultTimezone,
		Stopwatch: []StopwatchEntry{},
		Bedtime:   []BedtimeEntry{},
		Alarms:    []AlarmEntry{},
	}
}

// Clone returns a deep copy of s with non-nil collections.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Timezone:  s.Timezone,
		Stopwatch: slices.Clone(s.Stopwatch),
		Bedtime:   slices.Clone(s.Bedtime),
		Alarms:    make([]AlarmEntry, len(s.Alarms)),
	}
	if out.Stopwatch == nil {
		out.Stopwatch = []StopwatchEntry{}
	}
	if out.Bedtime == nil {
		out.Bedtime = []BedtimeEntry{}
	}
	for i, a := range s.Alarms {
		out.Alarms[i] = a.Clone()
	}
	return out
}

// DayStats summarizes the bedtime entries sharing one date label.
type DayStats struct {
	DateLabel string `json:"date_label"`
	Count     int    `json:"count"`
	TotalMs   int64  `json:"total_ms"`
	AverageMs int64  `json:"average_ms"`
}

// SummarizeBedtime buckets entries by DateLabel, newest date first. When
// days > 0 only that many buckets are returned.
func SummarizeBedtime(entries []BedtimeEntry, days int) []DayStats {
	buckets := make(map[string]*DayStats)
	for _, e := range entries {
		b, ok := buckets[e.DateLabel]
		if !ok {
			b = &DayStats{DateLabel: e.DateLabel}
			buckets[e.DateLabel] = b
		}
		b.Count++
		b.TotalMs += e.DurationMs
	}

	out := make([]DayStats, 0, len(buckets))
	for _, b := range buckets {
		b.AverageMs = b.TotalMs / int64(b.Count)
		out = append(out, *b)
	}
	// YYYY-MM-DD sorts lexically in date order.
	sort.Slice(out, func(i, j int) bool { return out[i].DateLabel > out[j].DateLabel })

	if days > 0 && len(out) > days {
		out = out[:days]
	}
	return out
}

// DateLabel renders the calendar date of a wall-clock time.
func DateLabel(wall time.Time) string {
	return wall.Format(DateLabelLayout)
}
