package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/converse/chat-server-go/internal/middleware"
	"github.com/converse/chat-server-go/internal/model"
	"github.com/converse/chat-server-go/internal/session"
	"github.com/converse/chat-server-go/internal/util"
)

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func newTestStore() *session.Store {
	return session.NewStore(
		session.NewMemoryBackend(),
		session.NewMemoryBackend(),
		func(context.Context) bool { return true },
		time.Hour,
	)
}

func TestLoginSuccess(t *testing.T) {
	hash, err := util.HashPassword("correct horse")
	require.NoError(t, err)

	users := new(mockUserRepo)
	users.On("FindByEmail", mock.Anything, "alice@example.com").Return(&model.User{
		ID:           "user-1",
		Email:        "alice@example.com",
		Username:     "alice",
		PasswordHash: hash,
	}, nil)

	store := newTestStore()
	h := NewAuthHandler(users, store, false)

	body := `{"email":"alice@example.com","password":"correct horse"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.SessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	// The cookie value resolves to a live session for the user.
	sess, err := store.Get(req.Context(), cookies[0].Value)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "user-1", sess.UserID)
}

func TestLoginWrongPassword(t *testing.T) {
	hash, err := util.HashPassword("correct horse")
	require.NoError(t, err)

	users := new(mockUserRepo)
	users.On("FindByEmail", mock.Anything, "alice@example.com").Return(&model.User{
		ID:           "user-1",
		Email:        "alice@example.com",
		PasswordHash: hash,
	}, nil)

	h := NewAuthHandler(users, newTestStore(), false)

	body := `{"email":"alice@example.com","password":"battery staple"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestLoginUnknownUser(t *testing.T) {
	users := new(mockUserRepo)
	users.On("FindByEmail", mock.Anything, "ghost@example.com").Return(nil, nil)

	h := NewAuthHandler(users, newTestStore(), false)

	body := `{"email":"ghost@example.com","password":"whatever"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	// Same response as a wrong password so callers cannot probe for accounts.
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginMissingFields(t *testing.T) {
	h := NewAuthHandler(new(mockUserRepo), newTestStore(), false)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(`{"email":"a@b.c"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(`not json`))
	rec = httptest.NewRecorder()
	h.Login(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogout(t *testing.T) {
	store := newTestStore()
	h := NewAuthHandler(new(mockUserRepo), store, false)

	token, err := store.Create(context.Background(), "user-1", "127.0.0.1", "agent")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: token})
	req = req.WithContext(middleware.WithUserID(req.Context(), "user-1"))
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	sess, err := store.Get(context.Background(), token)
	require.NoError(t, err)
	assert.Nil(t, sess)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
