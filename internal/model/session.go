package model

import "time"

// Session is the record behind one authenticated client agent. The token is
// the session identifier and is only held by the client; everything else is
// metadata used for enumeration and revocation.
type Session struct {
	Token     string    `json:"-"`
	UserID    string    `json:"userId"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"userAgent"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session's absolute lifetime has elapsed.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionInfo is the enumeration view of a session. The raw token is replaced
// by a masked form so listing endpoints never leak usable credentials.
type SessionInfo struct {
	TokenPrefix string    `json:"tokenPrefix"`
	UserID      string    `json:"userId"`
	IP          string    `json:"ip"`
	UserAgent   string    `json:"userAgent"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
