package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/converse/chat-server-go/internal/errors"
	"github.com/converse/chat-server-go/internal/httputil"
	"github.com/converse/chat-server-go/internal/middleware"
	"github.com/converse/chat-server-go/internal/service"
)

type ConversationHandler struct {
	conversations *service.ConversationService
	membership    *service.MembershipService
	messages      *service.MessageService
}

func NewConversationHandler(
	conversations *service.ConversationService,
	membership *service.MembershipService,
	messages *service.MessageService,
) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		membership:    membership,
		messages:      messages,
	}
}

func (h *ConversationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/private", h.CreatePrivate)
	r.Get("/{conversationId}/messages", h.ListMessages)
	r.Get("/{conversationId}/messages/{messageId}/status", h.MessageStatus)
	r.Get("/{conversationId}/participants", h.ListParticipants)
	r.Delete("/{conversationId}/participants/me", h.Leave)
	return r
}

type createPrivateRequest struct {
	UserID string `json:"userId"`
}

func (h *ConversationHandler) CreatePrivate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req createPrivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("invalid request body"))
		return
	}
	if req.UserID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("userId"))
		return
	}
	if req.UserID == userID {
		httputil.WriteError(w, apperrors.InvalidInput("userId", "cannot start a conversation with yourself"))
		return
	}

	conv, created, err := h.conversations.FindOrCreatePrivate(r.Context(), userID, req.UserID)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("create private conversation failed")
		httputil.WriteError(w, apperrors.Internal("Failed to create conversation"))
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, map[string]any{
		"conversation": conv,
	})
}

func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID := chi.URLParam(r, "conversationId")

	member, err := h.membership.IsMember(r.Context(), userID, conversationID)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("membership check failed")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	if !member {
		httputil.WriteError(w, apperrors.NotParticipant())
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	msgs, err := h.messages.ListByConversation(r.Context(), conversationID, limit, offset)
	if err != nil {
		log.Error().Err(err).Str("conversationId", conversationID).Msg("list messages failed")
		httputil.WriteError(w, apperrors.Internal("Failed to list messages"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
	})
}

// MessageStatus returns the caller's own delivery-state row for a message.
// A client uses it to reconcile read/delivered state after reconnecting.
func (h *ConversationHandler) MessageStatus(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID := chi.URLParam(r, "conversationId")
	messageID := chi.URLParam(r, "messageId")

	member, err := h.membership.IsMember(r.Context(), userID, conversationID)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("membership check failed")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	if !member {
		httputil.WriteError(w, apperrors.NotParticipant())
		return
	}

	status, err := h.messages.StatusFor(r.Context(), messageID, userID)
	if err != nil {
		log.Error().Err(err).Str("messageId", messageID).Msg("message status lookup failed")
		httputil.WriteError(w, apperrors.Internal("Failed to look up message status"))
		return
	}
	if status == nil {
		httputil.WriteError(w, apperrors.NotFound("Message status"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status": status,
	})
}

func (h *ConversationHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID := chi.URLParam(r, "conversationId")

	member, err := h.membership.IsMember(r.Context(), userID, conversationID)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("membership check failed")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	if !member {
		httputil.WriteError(w, apperrors.NotParticipant())
		return
	}

	ids, err := h.membership.ListParticipants(r.Context(), conversationID)
	if err != nil {
		log.Error().Err(err).Str("conversationId", conversationID).Msg("list participants failed")
		httputil.WriteError(w, apperrors.Internal("Failed to list participants"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"participants": ids,
	})
}

func (h *ConversationHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID := chi.URLParam(r, "conversationId")

	member, err := h.membership.IsMember(r.Context(), userID, conversationID)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("membership check failed")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	if !member {
		httputil.WriteError(w, apperrors.NotParticipant())
		return
	}

	if err := h.conversations.Leave(r.Context(), conversationID, userID); err != nil {
		log.Error().Err(err).Str("conversationId", conversationID).Msg("leave conversation failed")
		httputil.WriteError(w, apperrors.Internal("Failed to leave conversation"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
	})
}
