package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/time-engine/pkg/protocol"
)

func TestSnapshot_EmptyCollectionsAreArrays(t *testing.T) {
	raw, err := json.Marshal(protocol.Snapshot{
		Timezone:  "UTC",
		Stopwatch: []protocol.StopwatchEntry{},
		Bedtime:   []protocol.BedtimeEntry{},
		Alarms:    []protocol.AlarmEntry{},
	})

	require.NoError(t, err)
	assert.JSONEq(t, `{"timezone":"UTC","stopwatch":[],"bedtime":[],"alarms":[]}`, string(raw))
}

func TestAlarmEntry_OptionalFieldsOmitted(t *testing.T) {
	raw, err := json.Marshal(protocol.AlarmEntry{ID: "a1", Status: "Active"})

	require.NoError(t, err)
	assert.NotContains(t, string(raw), "source_id")
	assert.NotContains(t, string(raw), "repeat_pattern")
	assert.Contains(t, string(raw), `"snooze_duration_minutes":0`)
}

func TestConvertResponse_AlwaysReportsDegraded(t *testing.T) {
	raw, err := json.Marshal(protocol.ConvertResponse{Timezone: "UTC", UTC: "2024-01-01T14:00:00.000Z"})

	require.NoError(t, err)
	assert.JSONEq(t, `{"timezone":"UTC","utc":"2024-01-01T14:00:00.000Z","degraded":false}`, string(raw))
}
