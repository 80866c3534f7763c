package audit

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = orig })
	return &buf
}

func TestLogEmitsSecurityMarker(t *testing.T) {
	buf := captureLog(t)

	Log(Event{
		Type:      EventLoginFailure,
		UserID:    "user-1",
		IP:        "10.0.0.1",
		UserAgent: "agent",
		Details:   map[string]interface{}{"count": 2},
	})

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "security", record["audit"])
	assert.Equal(t, string(EventLoginFailure), record["event_type"])
	assert.Equal(t, "user-1", record["user_id"])
	assert.Equal(t, "10.0.0.1", record["ip"])
	assert.Equal(t, "agent", record["user_agent"])
	assert.EqualValues(t, 2, record["count"])
	assert.Contains(t, record, "timestamp")
}

func TestLogOmitsEmptyFields(t *testing.T) {
	buf := captureLog(t)

	Log(Event{Type: EventWSRejected})

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, string(EventWSRejected), record["event_type"])
	assert.NotContains(t, record, "user_id")
	assert.NotContains(t, record, "ip")
	assert.NotContains(t, record, "user_agent")
}
