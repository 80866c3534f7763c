// Package auth resolves session tokens to user identities. Both the HTTP
// session middleware and the websocket handshake go through the same
// Authenticator, so revocation and expiry behave identically on both
// transports.
package auth

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/converse/chat-server-go/internal/session"
)

type State int

const (
	// StateUnauthenticated means no token was presented at all.
	StateUnauthenticated State = iota
	// StateInvalid means a token was presented but resolves to no live session.
	StateInvalid
	// StateAuthenticated means the token resolved to a live session.
	StateAuthenticated
)

type Result struct {
	State  State
	UserID string
}

func (r Result) Authenticated() bool {
	return r.State == StateAuthenticated
}

type Authenticator struct {
	store *session.Store
}

func NewAuthenticator(store *session.Store) *Authenticator {
	return &Authenticator{store: store}
}

// Authenticate resolves a session token. Backend faults fail closed: the
// caller sees StateInvalid, never a silently authenticated identity.
func (a *Authenticator) Authenticate(ctx context.Context, token string) Result {
	if token == "" {
		return Result{State: StateUnauthenticated}
	}

	sess, err := a.store.Get(ctx, token)
	if err != nil {
		log.Error().Err(err).Msg("authenticator: session lookup failed")
		return Result{State: StateInvalid}
	}

	if sess == nil {
		return Result{State: StateInvalid}
	}

	return Result{State: StateAuthenticated, UserID: sess.UserID}
}
