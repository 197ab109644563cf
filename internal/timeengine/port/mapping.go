package port

import (
	"time"

	"github.com/aelexs/time-engine/internal/domain"
	"github.com/aelexs/time-engine/pkg/protocol"
)

// localLayout renders wall-clock times in conversion responses.
const localLayout = "2006-01-02T15:04:05.000"

func mapSlice[T, U any](in []T, f func(T) U) []U {
	out := make([]U, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}

// optionalInstant renders zero times as "".
func optionalInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return domain.FormatInstant(t)
}

func toStopwatchDTO(e domain.StopwatchEntry) protocol.StopwatchEntry {
	return protocol.StopwatchEntry{
		ID:           e.ID,
		UserID:       e.UserID,
		Heading:      e.Heading,
		Purpose:      e.Purpose,
		StartTimeUTC: domain.FormatInstant(e.StartUTC),
		EndTimeUTC:   domain.FormatInstant(e.EndUTC),
		DurationMs:   e.DurationMs,
		Timezone:     e.Timezone,
		CreatedAt:    optionalInstant(e.CreatedAt),
	}
}

func toBedtimeDTO(e domain.BedtimeEntry) protocol.BedtimeEntry {
	return protocol.BedtimeEntry{
		ID:           e.ID,
		UserID:       e.UserID,
		SleepTimeUTC: domain.FormatInstant(e.SleepUTC),
		WakeTimeUTC:  domain.FormatInstant(e.WakeUTC),
		DurationMs:   e.DurationMs,
		DateLabel:    e.DateLabel,
		Timezone:     e.Timezone,
		Notes:        e.Notes,
		CreatedAt:    optionalInstant(e.CreatedAt),
	}
}

func toDayStatsDTO(s domain.DayStats) protocol.DayStats {
	return protocol.DayStats{
		DateLabel: s.DateLabel,
		Count:     s.Count,
		TotalMs:   s.TotalMs,
		AverageMs: s.AverageMs,
	}
}

func toAlarmDTO(a domain.AlarmEntry) protocol.AlarmEntry {
	dto := protocol.AlarmEntry{
		ID:                    a.ID,
		UserID:                a.UserID,
		Title:                 a.Title,
		SourceType:            string(a.Source),
		SourceID:              a.SourceID,
		TriggerTimeUTC:        domain.FormatInstant(a.TriggerUTC),
		Status:                string(a.Status),
		Timezone:              a.Timezone,
		SnoozeDurationMinutes: a.SnoozeMinutes,
		CreatedAt:             optionalInstant(a.CreatedAt),
		UpdatedAt:             optionalInstant(a.UpdatedAt),
	}
	if p := a.RepeatPattern; p != nil {
		dto.RepeatPattern = &protocol.RepeatPattern{
			Frequency:  p.Frequency,
			Interval:   p.Interval,
			DaysOfWeek: p.DaysOfWeek,
		}
	}
	return dto
}

func fromRepeatPatternDTO(p *protocol.RepeatPattern) *domain.RepeatPattern {
	if p == nil {
		return nil
	}
	return &domain.RepeatPattern{
		Frequency:  p.Frequency,
		Interval:   p.Interval,
		DaysOfWeek: p.DaysOfWeek,
	}
}

func toSnapshotDTO(s domain.Snapshot) protocol.Snapshot {
	return protocol.Snapshot{
		Timezone:  s.Timezone,
		Stopwatch: mapSlice(s.Stopwatch, toStopwatchDTO),
		Bedtime:   mapSlice(s.Bedtime, toBedtimeDTO),
		Alarms:    mapSlice(s.Alarms, toAlarmDTO),
	}
}
