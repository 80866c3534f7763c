// Package session implements the dual-backend session store. Redis is the
// primary backend; a process-local in-memory store takes over while redis is
// unreachable so authentication never suffers a total outage. Backend
// selection is a single decision made at the start of each operation, never
// cached per session.
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/converse/chat-server-go/internal/audit"
	"github.com/converse/chat-server-go/internal/metrics"
	"github.com/converse/chat-server-go/internal/model"
	"github.com/converse/chat-server-go/internal/util"
)

// Backend is one storage implementation for session records plus the
// per-user token index.
type Backend interface {
	Put(ctx context.Context, sess *model.Session, ttl time.Duration) error
	Get(ctx context.Context, token string) (*model.Session, error)
	Delete(ctx context.Context, token string) (bool, error)
	DeleteAll(ctx context.Context, userID string) (int, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Session, error)
}

// HealthFunc reports whether the primary backend is currently reachable.
type HealthFunc func(ctx context.Context) bool

// Store fronts the two backends. Sessions created while the fallback is
// active stay in the fallback; they are not migrated when the primary
// recovers, and become unreachable for reads until it degrades again.
// Revocation is the one exception: it always sweeps the fallback too, so an
// explicit revoke is never lost to a backend flip.
type Store struct {
	primary  Backend
	fallback *MemoryBackend
	healthy  HealthFunc
	ttl      time.Duration
}

func NewStore(primary Backend, fallback *MemoryBackend, healthy HealthFunc, ttl time.Duration) *Store {
	return &Store{
		primary:  primary,
		fallback: fallback,
		healthy:  healthy,
		ttl:      ttl,
	}
}

// TTL returns the configured session lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// selectBackend makes the per-operation backend decision from the current
// health signal.
func (s *Store) selectBackend(ctx context.Context) Backend {
	if s.healthy(ctx) {
		return s.primary
	}
	return s.fallback
}

// Create issues a new session token for the user and writes the record to
// the selected backend with the remaining lifetime as its TTL.
func (s *Store) Create(ctx context.Context, userID, ip, userAgent string) (string, error) {
	token, err := util.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}

	now := time.Now()
	sess := &model.Session{
		Token:     token,
		UserID:    userID,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	backend := s.selectBackend(ctx)
	if err := backend.Put(ctx, sess, s.ttl); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}

	if backend == s.fallback {
		metrics.SessionsCreated.WithLabelValues("memory").Inc()
		log.Warn().
			Str("userId", userID).
			Msg("session created in fallback store: redis unreachable")
	} else {
		metrics.SessionsCreated.WithLabelValues("redis").Inc()
	}

	audit.Log(audit.Event{
		Type:      audit.EventSessionCreate,
		UserID:    userID,
		IP:        ip,
		UserAgent: userAgent,
	})

	return token, nil
}

// Get resolves a token to a live session, or nil if absent or expired.
// Missing sessions are not errors; only backend faults are.
func (s *Store) Get(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, nil
	}

	sess, err := s.selectBackend(ctx).Get(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess == nil || sess.Expired(time.Now()) {
		return nil, nil
	}
	return sess, nil
}

// Revoke deletes a single session. It returns whether a record existed in
// either backend.
func (s *Store) Revoke(ctx context.Context, token string) (bool, error) {
	backend := s.selectBackend(ctx)

	existed, err := backend.Delete(ctx, token)
	if err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}

	// The fallback is in-process, so clearing it costs nothing and closes
	// the window where a session created during an outage would survive an
	// explicit revoke issued after recovery.
	if backend != s.fallback {
		fallbackExisted, _ := s.fallback.Delete(ctx, token)
		existed = existed || fallbackExisted
	}

	return existed, nil
}

// RevokeAll deletes every session belonging to the user, including any held
// by the fallback store, and returns the number deleted.
func (s *Store) RevokeAll(ctx context.Context, userID string) (int, error) {
	backend := s.selectBackend(ctx)

	count, err := backend.DeleteAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke all sessions: %w", err)
	}

	if backend != s.fallback {
		fallbackCount, _ := s.fallback.DeleteAll(ctx, userID)
		count += fallbackCount
	}

	return count, nil
}

// RevokeByPrefix revokes the user's session whose token starts with prefix.
// Listing endpoints only ever expose masked prefixes, so this is how a
// client revokes one specific device without ever seeing raw tokens.
func (s *Store) RevokeByPrefix(ctx context.Context, userID, prefix string) (bool, error) {
	if prefix == "" {
		return false, nil
	}

	sessions, err := s.selectBackend(ctx).ListByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("list sessions: %w", err)
	}

	for _, sess := range sessions {
		if strings.HasPrefix(sess.Token, prefix) {
			return s.Revoke(ctx, sess.Token)
		}
	}
	return false, nil
}

// ListByUser returns metadata for every live session of the user, ordered by
// creation time. The raw token is masked.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]model.SessionInfo, error) {
	sessions, err := s.selectBackend(ctx).ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	now := time.Now()
	infos := make([]model.SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		if sess.Expired(now) {
			continue
		}
		infos = append(infos, model.SessionInfo{
			TokenPrefix: util.TokenPrefix(sess.Token),
			UserID:      sess.UserID,
			IP:          sess.IP,
			UserAgent:   sess.UserAgent,
			CreatedAt:   sess.CreatedAt,
			ExpiresAt:   sess.ExpiresAt,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})

	return infos, nil
}
