package handlers

import (
	"net/http"

	"github.com/dom/slash-backend/internal/api/middleware"
	"github.com/dom/slash-backend/internal/api/respond"
	"github.com/dom/slash-backend/internal/domain"
	"github.com/dom/slash-backend/internal/service"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

type AuthHandler struct {
	sessions *service.SessionService
	users    *service.UserService
}

func NewAuthHandler(sessions *service.SessionService, users *service.UserService) *AuthHandler {
	return &AuthHandler{sessions: sessions, users: users}
}

type SessionResponse struct {
	Success          bool         `json:"success"`
	AccessToken      string       `json:"accessToken"`
	RefreshToken     string       `json:"refreshToken"`
	ExpiresIn        int64        `json:"expiresIn"`
	ExpiresInSeconds int64        `json:"expiresInSeconds"`
	User             *domain.User `json:"user"`
}

func newSessionResponse(s *service.Session) SessionResponse {
	return SessionResponse{
		Success:          true,
		AccessToken:      s.AccessToken,
		RefreshToken:     s.RefreshToken,
		ExpiresIn:        s.ExpiresIn,
		ExpiresInSeconds: s.ExpiresIn,
		User:             s.User,
	}
}

func requestMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{
		Method:    r.Method,
		Path:      r.URL.Path,
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: chiMiddleware.GetReqID(r.Context()),
	}
}

// Exchange trades an identity provider token for a session.
func (h *AuthHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Exchange(r.Context(), middleware.BearerToken(r), requestMeta(r))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, newSessionResponse(session))
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Refresh(r.Context(), middleware.BearerToken(r), requestMeta(r))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, newSessionResponse(session))
}

// Logout always succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(r.Context(), middleware.BearerToken(r), requestMeta(r))
	respond.JSON(w, r, http.StatusOK, respond.Envelope{Success: true, Message: "Logged out successfully"})
}

// LogoutAll revokes every refresh token of the caller.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respond.Error(w, r, service.ErrNoToken)
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	revoked, err := h.sessions.LogoutAll(r.Context(), user, requestMeta(r))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, r, http.StatusOK, map[string]int64{"revokedSessions": revoked})
}
