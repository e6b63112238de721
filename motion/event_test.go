package motion

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	tests := []struct {
		name    string
		start   float64
		end     float64
		wantErr bool
	}{
		{name: "positive interval", start: 1.5, end: 3.25},
		{name: "zero length", start: 2, end: 2, wantErr: true},
		{name: "reversed", start: 3, end: 2, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := NewEvent(tt.start, tt.end)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.end-tt.start, ev.Duration, 1e-12)
		})
	}
}

func TestEventJSONRoundsToMilliseconds(t *testing.T) {
	ev, err := NewEvent(1.0/3.0, 2.0/3.0)
	require.NoError(t, err)

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start_seconds":0.333,"end_seconds":0.667,"duration_seconds":0.333}`, string(data))
}

func TestEventLogOrdering(t *testing.T) {
	log := &EventLog{}
	require.NoError(t, log.Append(Event{Start: 1, End: 2, Duration: 1}))
	require.NoError(t, log.Append(Event{Start: 1, End: 1.5, Duration: 0.5}))
	assert.Error(t, log.Append(Event{Start: 0.5, End: 3, Duration: 2.5}), "out of order start")
	assert.Error(t, log.Append(Event{Start: 4, End: 4, Duration: 0}), "empty interval")

	assert.Equal(t, 2, log.Len())
	assert.InDelta(t, 1.5, log.TotalDuration(), 1e-12)
}

func TestEventLogWriteJSON(t *testing.T) {
	t.Run("empty log is an empty array", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, (&EventLog{}).WriteJSON(&buf))
		assert.Equal(t, "[]\n", buf.String())
	})

	t.Run("round trip", func(t *testing.T) {
		log := &EventLog{}
		require.NoError(t, log.Append(Event{Start: 2, End: 3.9, Duration: 1.9}))
		require.NoError(t, log.Append(Event{Start: 10.0401, End: 12.5, Duration: 12.5 - 10.0401}))

		var buf bytes.Buffer
		require.NoError(t, log.WriteJSON(&buf))
		assert.Contains(t, buf.String(), "\n    {\n        \"start_seconds\": 2,")

		back, err := ReadEventLog(&buf)
		require.NoError(t, err)
		require.Equal(t, 2, back.Len())
		assert.InDelta(t, 10.04, back.Events()[1].Start, 1e-9)
		assert.InDelta(t, 2.46, back.Events()[1].Duration, 1e-9)
	})
}

func TestValidFrameRate(t *testing.T) {
	assert.True(t, ValidFrameRate(29.97))
	assert.False(t, ValidFrameRate(0))
	assert.False(t, ValidFrameRate(-25))
}
