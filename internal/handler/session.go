package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/converse/chat-server-go/internal/audit"
	apperrors "github.com/converse/chat-server-go/internal/errors"
	"github.com/converse/chat-server-go/internal/httputil"
	"github.com/converse/chat-server-go/internal/middleware"
	"github.com/converse/chat-server-go/internal/session"
)

// SessionHandler exposes session enumeration and revocation for the
// authenticated user ("active devices" management).
type SessionHandler struct {
	store *session.Store
}

func NewSessionHandler(store *session.Store) *SessionHandler {
	return &SessionHandler{store: store}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Delete("/", h.RevokeAll)
	r.Delete("/{tokenPrefix}", h.Revoke)
	return r
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	sessions, err := h.store.ListByUser(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("list sessions failed")
		httputil.WriteError(w, apperrors.Internal("Failed to list sessions"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
	})
}

func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	tokenPrefix := chi.URLParam(r, "tokenPrefix")

	existed, err := h.store.RevokeByPrefix(r.Context(), userID, tokenPrefix)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("revoke session failed")
		httputil.WriteError(w, apperrors.Internal("Failed to revoke session"))
		return
	}
	if !existed {
		httputil.WriteError(w, apperrors.NotFound("Session"))
		return
	}

	audit.Log(audit.Event{
		Type:   audit.EventSessionRevoke,
		UserID: userID,
		IP:     r.RemoteAddr,
	})

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
	})
}

func (h *SessionHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	count, err := h.store.RevokeAll(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("revoke all sessions failed")
		httputil.WriteError(w, apperrors.Internal("Failed to revoke sessions"))
		return
	}

	middleware.ClearSessionCookie(w)

	audit.Log(audit.Event{
		Type:    audit.EventSessionPurge,
		UserID:  userID,
		IP:      r.RemoteAddr,
		Details: map[string]interface{}{"count": count},
	})

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   count,
	})
}
