package session

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converse/chat-server-go/internal/model"
)

// healthToggle is a HealthFunc whose answer tests flip mid-run.
type healthToggle struct{ healthy bool }

func (h *healthToggle) fn(context.Context) bool { return h.healthy }

func newTestStore(ttl time.Duration) (*Store, *MemoryBackend, *MemoryBackend, *healthToggle) {
	primary := NewMemoryBackend()
	fallback := NewMemoryBackend()
	health := &healthToggle{healthy: true}
	return NewStore(primary, fallback, health.fn, ttl), primary, fallback, health
}

func TestStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store, _, _, _ := newTestStore(time.Hour)

	before := time.Now()
	token, err := store.Create(ctx, "user-1", "10.0.0.1", "agent")
	require.NoError(t, err)
	after := time.Now()

	assert.Len(t, token, 64) // 32 random bytes, hex encoded

	sess, err := store.Get(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "user-1", sess.UserID)
	assert.Equal(t, "10.0.0.1", sess.IP)
	assert.False(t, sess.CreatedAt.Before(before))
	assert.False(t, sess.CreatedAt.After(after))
	assert.Equal(t, sess.CreatedAt.Add(time.Hour), sess.ExpiresAt)
}

func TestStoreCreateEmitsAuditEvent(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = orig })

	store, _, _, _ := newTestStore(time.Hour)
	_, err := store.Create(context.Background(), "user-1", "10.0.0.1", "agent")
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"audit":"security"`)
	assert.Contains(t, buf.String(), `"event_type":"session_create"`)
	assert.Contains(t, buf.String(), `"user_id":"user-1"`)
}

func TestStoreGetEmptyToken(t *testing.T) {
	store, _, _, _ := newTestStore(time.Hour)

	sess, err := store.Get(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestStoreGetExpired(t *testing.T) {
	ctx := context.Background()
	store, primary, _, _ := newTestStore(time.Hour)

	// A record the backend still holds but whose expiry passed.
	stale := newTestSession("tok-stale", "user-1", time.Hour)
	stale.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, primary.Put(ctx, stale, time.Hour))

	sess, err := store.Get(ctx, "tok-stale")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestStoreRevoke(t *testing.T) {
	ctx := context.Background()
	store, _, _, _ := newTestStore(time.Hour)

	token, err := store.Create(ctx, "user-1", "10.0.0.1", "agent")
	require.NoError(t, err)

	existed, err := store.Revoke(ctx, token)
	require.NoError(t, err)
	assert.True(t, existed)

	sess, err := store.Get(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, sess)

	existed, err = store.Revoke(ctx, token)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestStoreRevokeAll(t *testing.T) {
	ctx := context.Background()
	store, _, _, _ := newTestStore(time.Hour)

	_, err := store.Create(ctx, "user-1", "10.0.0.1", "agent-a")
	require.NoError(t, err)
	_, err = store.Create(ctx, "user-1", "10.0.0.2", "agent-b")
	require.NoError(t, err)
	keep, err := store.Create(ctx, "user-2", "10.0.0.3", "agent-c")
	require.NoError(t, err)

	count, err := store.RevokeAll(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	infos, err := store.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, infos)

	sess, err := store.Get(ctx, keep)
	require.NoError(t, err)
	require.NotNil(t, sess)
}

func TestStoreFallbackSelection(t *testing.T) {
	ctx := context.Background()
	store, primary, fallback, health := newTestStore(time.Hour)

	health.healthy = false
	token, err := store.Create(ctx, "user-1", "10.0.0.1", "agent")
	require.NoError(t, err)

	assert.Equal(t, 0, primary.Len())
	assert.Equal(t, 1, fallback.Len())

	// Reads resolve against the fallback while the primary is unhealthy.
	sess, err := store.Get(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, sess)

	// After recovery the fallback session is invisible to reads. It is not
	// migrated.
	health.healthy = true
	sess, err = store.Get(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestStoreRevokeSweepsFallbackAfterRecovery(t *testing.T) {
	ctx := context.Background()
	store, _, fallback, health := newTestStore(time.Hour)

	health.healthy = false
	token, err := store.Create(ctx, "user-1", "10.0.0.1", "agent")
	require.NoError(t, err)

	// Revoke issued after the primary recovered must still kill the
	// fallback-held session.
	health.healthy = true
	existed, err := store.Revoke(ctx, token)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, 0, fallback.Len())
}

func TestStoreRevokeAllSweepsFallback(t *testing.T) {
	ctx := context.Background()
	store, _, fallback, health := newTestStore(time.Hour)

	health.healthy = false
	_, err := store.Create(ctx, "user-1", "10.0.0.1", "agent")
	require.NoError(t, err)

	health.healthy = true
	_, err = store.Create(ctx, "user-1", "10.0.0.2", "agent")
	require.NoError(t, err)

	count, err := store.RevokeAll(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 0, fallback.Len())
}

func TestStoreRevokeByPrefix(t *testing.T) {
	ctx := context.Background()
	store, _, _, _ := newTestStore(time.Hour)

	tokenA, err := store.Create(ctx, "user-1", "10.0.0.1", "agent-a")
	require.NoError(t, err)
	tokenB, err := store.Create(ctx, "user-1", "10.0.0.2", "agent-b")
	require.NoError(t, err)

	existed, err := store.RevokeByPrefix(ctx, "user-1", tokenA[:8])
	require.NoError(t, err)
	assert.True(t, existed)

	sess, err := store.Get(ctx, tokenA)
	require.NoError(t, err)
	assert.Nil(t, sess)

	sess, err = store.Get(ctx, tokenB)
	require.NoError(t, err)
	require.NotNil(t, sess)

	existed, err = store.RevokeByPrefix(ctx, "user-1", "ffffffff")
	require.NoError(t, err)
	assert.False(t, existed)

	existed, err = store.RevokeByPrefix(ctx, "user-1", "")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestStoreListByUserMasksAndSorts(t *testing.T) {
	ctx := context.Background()
	store, primary, _, _ := newTestStore(time.Hour)

	older := newTestSession("aaaaaaaa1111", "user-1", time.Hour)
	older.CreatedAt = time.Now().Add(-time.Minute)
	require.NoError(t, primary.Put(ctx, older, time.Hour))

	newer := newTestSession("bbbbbbbb2222", "user-1", time.Hour)
	require.NoError(t, primary.Put(ctx, newer, time.Hour))

	expired := newTestSession("cccccccc3333", "user-1", time.Hour)
	expired.ExpiresAt = time.Now().Add(-time.Second)
	require.NoError(t, primary.Put(ctx, expired, time.Hour))

	infos, err := store.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "aaaaaaaa", infos[0].TokenPrefix)
	assert.Equal(t, "bbbbbbbb", infos[1].TokenPrefix)
}

// erroringBackend fails every operation, standing in for a redis outage the
// health probe has not noticed yet.
type erroringBackend struct{}

var errBackendDown = errors.New("backend down")

func (erroringBackend) Put(context.Context, *model.Session, time.Duration) error {
	return errBackendDown
}
func (erroringBackend) Get(context.Context, string) (*model.Session, error) {
	return nil, errBackendDown
}
func (erroringBackend) Delete(context.Context, string) (bool, error) { return false, errBackendDown }
func (erroringBackend) DeleteAll(context.Context, string) (int, error) {
	return 0, errBackendDown
}
func (erroringBackend) ListByUser(context.Context, string) ([]*model.Session, error) {
	return nil, errBackendDown
}

func TestStorePropagatesBackendFaults(t *testing.T) {
	ctx := context.Background()
	health := &healthToggle{healthy: true}
	store := NewStore(erroringBackend{}, NewMemoryBackend(), health.fn, time.Hour)

	_, err := store.Create(ctx, "user-1", "10.0.0.1", "agent")
	require.ErrorIs(t, err, errBackendDown)

	_, err = store.Get(ctx, "some-token")
	require.ErrorIs(t, err, errBackendDown)

	_, err = store.Revoke(ctx, "some-token")
	require.ErrorIs(t, err, errBackendDown)
}
