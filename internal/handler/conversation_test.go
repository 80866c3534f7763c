package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converse/chat-server-go/internal/database"
	"github.com/converse/chat-server-go/internal/middleware"
	"github.com/converse/chat-server-go/internal/model"
	"github.com/converse/chat-server-go/internal/repository"
	"github.com/converse/chat-server-go/internal/service"
)

// fakeConvRepo answers from fixed fields; handler tests only exercise the
// HTTP mapping, not repository behavior.
type fakeConvRepo struct {
	repository.ConversationRepository

	memberOf     map[string]bool // conversation ids the test user belongs to
	private      *model.Conversation
	removed      []string
	participants []string
}

func (f *fakeConvRepo) IsMember(_ context.Context, _, conversationID string) (bool, error) {
	return f.memberOf[conversationID], nil
}

func (f *fakeConvRepo) FindPrivateBetween(context.Context, string, string) (*model.Conversation, error) {
	return f.private, nil
}

func (f *fakeConvRepo) CreatePrivate(context.Context, string, string) (*model.Conversation, error) {
	return &model.Conversation{ID: "conv-new", IsGroup: false}, nil
}

func (f *fakeConvRepo) RemoveParticipant(_ context.Context, conversationID, _ string) error {
	f.removed = append(f.removed, conversationID)
	return nil
}

func (f *fakeConvRepo) ListParticipantIDs(context.Context, string) ([]string, error) {
	return f.participants, nil
}

type fakeMsgRepo struct {
	repository.MessageRepository

	messages []model.Message
	status   *model.MessageStatus
	gotLimit int
}

func (f *fakeMsgRepo) StatusFor(context.Context, string, string) (*model.MessageStatus, error) {
	return f.status, nil
}

func (f *fakeMsgRepo) ListByConversation(_ context.Context, _ string, limit, _ int) ([]model.Message, error) {
	f.gotLimit = limit
	return f.messages, nil
}

func (f *fakeMsgRepo) WithTx(*sqlx.Tx) repository.MessageRepository { return f }

type noopTx struct{}

func (noopTx) WithTx(_ context.Context, fn database.TxFunc) error { return fn(nil) }

func conversationRouter(conv *fakeConvRepo, msgs *fakeMsgRepo, userID string) http.Handler {
	h := NewConversationHandler(
		service.NewConversationService(conv),
		service.NewMembershipService(conv),
		service.NewMessageService(noopTx{}, msgs),
	)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUserID(req.Context(), userID)))
		})
	})
	r.Mount("/conversations", h.Routes())
	return r
}

func TestCreatePrivateNew(t *testing.T) {
	conv := &fakeConvRepo{}
	router := conversationRouter(conv, &fakeMsgRepo{}, "user-1")

	body := `{"userId":"user-2"}`
	req := httptest.NewRequest(http.MethodPost, "/conversations/private", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"conv-new"`)
}

func TestCreatePrivateExisting(t *testing.T) {
	conv := &fakeConvRepo{private: &model.Conversation{ID: "conv-1"}}
	router := conversationRouter(conv, &fakeMsgRepo{}, "user-1")

	body := `{"userId":"user-2"}`
	req := httptest.NewRequest(http.MethodPost, "/conversations/private", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"conv-1"`)
}

func TestCreatePrivateWithSelf(t *testing.T) {
	router := conversationRouter(&fakeConvRepo{}, &fakeMsgRepo{}, "user-1")

	body := `{"userId":"user-1"}`
	req := httptest.NewRequest(http.MethodPost, "/conversations/private", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListMessages(t *testing.T) {
	conv := &fakeConvRepo{memberOf: map[string]bool{"conv-1": true}}
	msgs := &fakeMsgRepo{messages: []model.Message{
		{ID: "msg-1", ConversationID: "conv-1", SenderID: "user-2", Content: "hi", CreatedAt: time.Now()},
	}}
	router := conversationRouter(conv, msgs, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/conversations/conv-1/messages?limit=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"msg-1"`)
	assert.Equal(t, 10, msgs.gotLimit)
}

func TestListMessagesNonMember(t *testing.T) {
	conv := &fakeConvRepo{memberOf: map[string]bool{}}
	router := conversationRouter(conv, &fakeMsgRepo{}, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/conversations/conv-1/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_A_PARTICIPANT")
}

func TestMessageStatus(t *testing.T) {
	conv := &fakeConvRepo{memberOf: map[string]bool{"conv-1": true}}
	msgs := &fakeMsgRepo{status: &model.MessageStatus{
		MessageID: "msg-1",
		UserID:    "user-1",
		Status:    model.DeliveryRead,
	}}
	router := conversationRouter(conv, msgs, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/conversations/conv-1/messages/msg-1/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"read"`)
}

func TestMessageStatusNoRow(t *testing.T) {
	conv := &fakeConvRepo{memberOf: map[string]bool{"conv-1": true}}
	router := conversationRouter(conv, &fakeMsgRepo{}, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/conversations/conv-1/messages/msg-ghost/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessageStatusNonMember(t *testing.T) {
	conv := &fakeConvRepo{memberOf: map[string]bool{}}
	router := conversationRouter(conv, &fakeMsgRepo{}, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/conversations/conv-1/messages/msg-1/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListParticipants(t *testing.T) {
	conv := &fakeConvRepo{
		memberOf:     map[string]bool{"conv-1": true},
		participants: []string{"user-1", "user-2"},
	}
	router := conversationRouter(conv, &fakeMsgRepo{}, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/conversations/conv-1/participants", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"participants":["user-1","user-2"]}`, rec.Body.String())
}

func TestListParticipantsNonMember(t *testing.T) {
	conv := &fakeConvRepo{memberOf: map[string]bool{}, participants: []string{"user-1"}}
	router := conversationRouter(conv, &fakeMsgRepo{}, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/conversations/conv-1/participants", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLeaveConversation(t *testing.T) {
	conv := &fakeConvRepo{memberOf: map[string]bool{"conv-1": true}}
	router := conversationRouter(conv, &fakeMsgRepo{}, "user-1")

	req := httptest.NewRequest(http.MethodDelete, "/conversations/conv-1/participants/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"conv-1"}, conv.removed)
}

func TestLeaveConversationNonMember(t *testing.T) {
	conv := &fakeConvRepo{memberOf: map[string]bool{}}
	router := conversationRouter(conv, &fakeMsgRepo{}, "user-1")

	req := httptest.NewRequest(http.MethodDelete, "/conversations/conv-1/participants/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, conv.removed)
}
