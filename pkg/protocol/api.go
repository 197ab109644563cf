// Package protocol defines the JSON wire types of the time engine HTTP API.
// Instants are ISO-8601 UTC strings with millisecond precision
// ("2024-01-01T14:00:00.000Z"). Local wall-clock inputs carry no offset
// ("2024-01-01T09:00") and are read in the user's timezone.
package protocol

// Convert directions for ConvertRequest.
const (
	DirectionToUTC   = "to_utc"
	DirectionFromUTC = "from_utc"
)

// Timezone is the body of GET and PUT /v1/timezone.
type Timezone struct {
	Timezone string `json:"timezone"`
}

// CreateStopwatchRequest is the body of POST /v1/stopwatch.
type CreateStopwatchRequest struct {
	Heading    string `json:"heading"`
	Purpose    string `json:"purpose"`
	StartLocal string `json:"start_local"`
	EndLocal   string `json:"end_local"`
}

// StopwatchEntry is a stored stopwatch session.
type StopwatchEntry struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Heading      string `json:"heading"`
	Purpose      string `json:"purpose"`
	StartTimeUTC string `json:"start_time_utc"`
	EndTimeUTC   string `json:"end_time_utc"`
	DurationMs   int64  `json:"duration_ms"`
	Timezone     string `json:"timezone"`
	CreatedAt    string `json:"created_at"`
}

// CreateBedtimeRequest is the body of POST /v1/bedtime. A wake time at or
// before the sleep time is taken to be on the following day.
type CreateBedtimeRequest struct {
	SleepLocal string `json:"sleep_local"`
	WakeLocal  string `json:"wake_local"`
	Notes      string `json:"notes,omitempty"`
}

// BedtimeEntry is a stored bedtime log.
type BedtimeEntry struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	SleepTimeUTC string `json:"sleep_time_utc"`
	WakeTimeUTC  string `json:"wake_time_utc"`
	DurationMs   int64  `json:"duration_ms"`
	DateLabel    string `json:"date_label"`
	Timezone     string `json:"timezone"`
	Notes        string `json:"notes,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// DayStats aggregates bedtime logs sharing a date label.
type DayStats struct {
	DateLabel string `json:"date_label"`
	Count     int    `json:"count"`
	TotalMs   int64  `json:"total_ms"`
	AverageMs int64  `json:"average_ms"`
}

// BedtimeStatsResponse is the body of GET /v1/bedtime/stats.
type BedtimeStatsResponse struct {
	Days []DayStats `json:"days"`
}

// RepeatPattern is stored and returned verbatim.
type RepeatPattern struct {
	Frequency  string `json:"frequency"`
	Interval   int    `json:"interval,omitempty"`
	DaysOfWeek []int  `json:"days_of_week,omitempty"`
}

// CreateAlarmRequest is the body of POST /v1/alarms.
type CreateAlarmRequest struct {
	Title                 string         `json:"title"`
	SourceType            string         `json:"source_type"`
	SourceID              string         `json:"source_id,omitempty"`
	TriggerLocal          string         `json:"trigger_local"`
	RepeatPattern         *RepeatPattern `json:"repeat_pattern,omitempty"`
	SnoozeDurationMinutes int            `json:"snooze_duration_minutes,omitempty"`
}

// UpdateAlarmRequest is the body of PATCH /v1/alarms/{id}. TriggerLocal is
// optional; when set the alarm is rescheduled.
type UpdateAlarmRequest struct {
	Status       string `json:"status"`
	TriggerLocal string `json:"trigger_local,omitempty"`
}

// AlarmEntry is a stored alarm.
type AlarmEntry struct {
	ID                    string         `json:"id"`
	UserID                string         `json:"user_id"`
	Title                 string         `json:"title"`
	SourceType            string         `json:"source_type"`
	SourceID              string         `json:"source_id,omitempty"`
	TriggerTimeUTC        string         `json:"trigger_time_utc"`
	Status                string         `json:"status"`
	Timezone              string         `json:"timezone"`
	RepeatPattern         *RepeatPattern `json:"repeat_pattern,omitempty"`
	SnoozeDurationMinutes int            `json:"snooze_duration_minutes"`
	CreatedAt             string         `json:"created_at"`
	UpdatedAt             string         `json:"updated_at"`
}

// Snapshot is the body of GET /v1/snapshot. Collections are newest first
// and never null.
type Snapshot struct {
	Timezone  string           `json:"timezone"`
	Stopwatch []StopwatchEntry `json:"stopwatch"`
	Bedtime   []BedtimeEntry   `json:"bedtime"`
	Alarms    []AlarmEntry     `json:"alarms"`
}

// ConvertRequest is the body of POST /v1/convert. Timezone defaults to the
// user's effective zone.
type ConvertRequest struct {
	Direction string `json:"direction"`
	Local     string `json:"local,omitempty"`   // to_utc input
	Instant   string `json:"instant,omitempty"` // from_utc input
	Timezone  string `json:"timezone,omitempty"`
	Pattern   string `json:"pattern,omitempty"` // from_utc: date-fns style output pattern
}

// ConvertResponse reports a conversion. Degraded is set when the zone could
// not be resolved and the input was returned unshifted.
type ConvertResponse struct {
	Timezone  string `json:"timezone"`
	UTC       string `json:"utc,omitempty"`
	Local     string `json:"local,omitempty"`
	Formatted string `json:"formatted,omitempty"`
	Degraded  bool   `json:"degraded"`
}

// Error is the body of every non-2xx response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
