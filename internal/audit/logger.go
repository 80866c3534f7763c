package audit

import (
	"time"

	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventLoginSuccess  EventType = "login_success"
	EventLoginFailure  EventType = "login_failure"
	EventLogout        EventType = "logout"
	EventSessionCreate EventType = "session_create"
	EventSessionRevoke EventType = "session_revoke"
	EventSessionPurge  EventType = "session_purge"
	EventWSConnect     EventType = "ws_connect"
	EventWSRejected    EventType = "ws_rejected"
	EventAuthFailure   EventType = "auth_failure"
)

type Event struct {
	Type      EventType
	UserID    string
	IP        string
	UserAgent string
	Details   map[string]interface{}
}

// Log writes a security audit line. These are regular zerolog records with
// an audit marker so they can be filtered out of the application stream.
func Log(event Event) {
	logger := log.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now())

	if event.UserID != "" {
		logger = logger.Str("user_id", event.UserID)
	}
	if event.IP != "" {
		logger = logger.Str("ip", event.IP)
	}
	if event.UserAgent != "" {
		logger = logger.Str("user_agent", event.UserAgent)
	}
	for k, v := range event.Details {
		logger = logger.Interface(k, v)
	}

	l := logger.Logger()
	l.Info().Msg("audit event")
}
