package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/converse/chat-server-go/internal/audit"
	apperrors "github.com/converse/chat-server-go/internal/errors"
	"github.com/converse/chat-server-go/internal/httputil"
	"github.com/converse/chat-server-go/internal/middleware"
	"github.com/converse/chat-server-go/internal/repository"
	"github.com/converse/chat-server-go/internal/session"
	"github.com/converse/chat-server-go/internal/util"
)

// AuthHandler owns the credential-verification entry point that turns a
// password into a session. Registration, OTP, and password reset live in a
// separate service.
type AuthHandler struct {
	userRepo     repository.UserRepository
	store        *session.Store
	cookieSecure bool
}

func NewAuthHandler(userRepo repository.UserRepository, store *session.Store, cookieSecure bool) *AuthHandler {
	return &AuthHandler{
		userRepo:     userRepo,
		store:        store,
		cookieSecure: cookieSecure,
	}
}

func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.Login)
	return r
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("invalid request body"))
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteError(w, apperrors.MissingRequired("email and password"))
		return
	}

	user, err := h.userRepo.FindByEmail(r.Context(), req.Email)
	if err != nil {
		log.Error().Err(err).Msg("login: user lookup failed")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	if user == nil || !util.CheckPasswordHash(req.Password, user.PasswordHash) {
		audit.Log(audit.Event{
			Type:      audit.EventLoginFailure,
			IP:        r.RemoteAddr,
			UserAgent: r.UserAgent(),
		})
		httputil.WriteError(w, apperrors.Unauthorized("Invalid email or password"))
		return
	}

	token, err := h.store.Create(r.Context(), user.ID, r.RemoteAddr, r.UserAgent())
	if err != nil {
		log.Error().Err(err).Str("userId", user.ID).Msg("login: session create failed")
		httputil.WriteError(w, apperrors.Internal("Failed to create session"))
		return
	}

	middleware.SetSessionCookie(w, token, h.store.TTL(), h.cookieSecure)

	audit.Log(audit.Event{
		Type:      audit.EventLoginSuccess,
		UserID:    user.ID,
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user": map[string]any{
			"id":       user.ID,
			"email":    user.Email,
			"username": user.Username,
		},
	})
}

// Logout revokes the presented session and clears the cookie. It sits behind
// the session middleware, so an unauthenticated call never reaches it.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.SessionTokenFromRequest(r)
	userID := middleware.GetUserID(r.Context())

	existed, err := h.store.Revoke(r.Context(), token)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("logout: revoke failed")
		httputil.WriteError(w, apperrors.Internal("Failed to revoke session"))
		return
	}

	middleware.ClearSessionCookie(w)

	audit.Log(audit.Event{
		Type:   audit.EventLogout,
		UserID: userID,
		IP:     r.RemoteAddr,
	})

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success": existed,
	})
}
