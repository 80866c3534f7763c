package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/converse/chat-server-go/internal/model"
)

type memoryEntry struct {
	session *model.Session
	timer   *time.Timer
}

// MemoryBackend is the process-local fallback store. Expiry is a one-shot
// timer per session, armed after the record write and cancelled on explicit
// revoke. Cleanup is idempotent: a timer firing after a revoke already
// removed the entry is a no-op. Sessions here are lost on process restart
// and invisible to other instances.
type MemoryBackend struct {
	mu       sync.Mutex
	sessions map[string]*memoryEntry
	byUser   map[string]map[string]struct{}
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		sessions: make(map[string]*memoryEntry),
		byUser:   make(map[string]map[string]struct{}),
	}
}

func (b *MemoryBackend) Put(_ context.Context, sess *model.Session, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := &memoryEntry{session: sess}
	b.sessions[sess.Token] = entry

	if b.byUser[sess.UserID] == nil {
		b.byUser[sess.UserID] = make(map[string]struct{})
	}
	b.byUser[sess.UserID][sess.Token] = struct{}{}

	// Armed after the record is in the maps, under the same lock, so the
	// timer can never observe a half-written session.
	token := sess.Token
	entry.timer = time.AfterFunc(ttl, func() {
		b.expire(token)
	})

	return nil
}

func (b *MemoryBackend) expire(token string) {
	b.mu.Lock()
	entry, ok := b.sessions[token]
	if ok {
		b.removeLocked(token, entry)
	}
	b.mu.Unlock()

	if ok {
		log.Debug().Str("userId", entry.session.UserID).Msg("fallback session expired")
	}
}

// removeLocked deletes the record and its index entry. Callers hold b.mu.
func (b *MemoryBackend) removeLocked(token string, entry *memoryEntry) {
	delete(b.sessions, token)
	if tokens, ok := b.byUser[entry.session.UserID]; ok {
		delete(tokens, token)
		if len(tokens) == 0 {
			delete(b.byUser, entry.session.UserID)
		}
	}
}

func (b *MemoryBackend) Get(_ context.Context, token string) (*model.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.sessions[token]
	if !ok {
		return nil, nil
	}
	return entry.session, nil
}

func (b *MemoryBackend) Delete(_ context.Context, token string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.sessions[token]
	if !ok {
		return false, nil
	}

	entry.timer.Stop()
	b.removeLocked(token, entry)
	return true, nil
}

func (b *MemoryBackend) DeleteAll(_ context.Context, userID string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tokens, ok := b.byUser[userID]
	if !ok {
		return 0, nil
	}

	count := 0
	for token := range tokens {
		if entry, ok := b.sessions[token]; ok {
			entry.timer.Stop()
			delete(b.sessions, token)
			count++
		}
	}
	delete(b.byUser, userID)

	return count, nil
}

func (b *MemoryBackend) ListByUser(_ context.Context, userID string) ([]*model.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tokens, ok := b.byUser[userID]
	if !ok {
		return nil, nil
	}

	sessions := make([]*model.Session, 0, len(tokens))
	for token := range tokens {
		if entry, ok := b.sessions[token]; ok {
			sessions = append(sessions, entry.session)
		}
	}

	return sessions, nil
}

// Sweep removes any session whose expiry already passed. The per-session
// timers make this normally redundant; the periodic job calls it as a safety
// net so a missed timer cannot leave a dangling record.
func (b *MemoryBackend) Sweep() int {
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for token, entry := range b.sessions {
		if entry.session.Expired(now) {
			entry.timer.Stop()
			b.removeLocked(token, entry)
			count++
		}
	}
	return count
}

// Len reports the number of live sessions, for tests and metrics.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}
