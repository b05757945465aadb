package handlers

import (
	"net/http"
	"time"

	"github.com/dom/slash-backend/internal/api/middleware"
	"github.com/dom/slash-backend/internal/api/respond"
	"github.com/dom/slash-backend/internal/service"
)

type UserHandler struct {
	users *service.UserService
}

func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, r, http.StatusOK, user)
}

func (h *UserHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	stats, err := h.users.Stats(r.Context(), userID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, r, http.StatusOK, stats)
}

func (h *UserHandler) UpdateLastLogin(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	user, err := h.users.UpdateLastLogin(r.Context(), userID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, r, http.StatusOK, user)
}

type syncRequest struct {
	UID         string     `json:"uid"`
	Email       string     `json:"email"`
	DisplayName *string    `json:"displayName"`
	PhotoURL    *string    `json:"photoURL"`
	LastLoginAt *time.Time `json:"lastLoginAt"`
}

// Sync stores the profile the extension reads from the identity provider.
func (h *UserHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	var req syncRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	profile := service.ProfileSync{
		Subject:     req.UID,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		AvatarURL:   req.PhotoURL,
	}
	if req.LastLoginAt != nil {
		profile.LastLoginAt = *req.LastLoginAt
	}

	user, err := h.users.Sync(r.Context(), userID, profile)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, respond.Envelope{Success: true, Data: user, Message: "User synced successfully"})
}

// DeleteAccount removes the caller with all their snippets and sessions.
func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	if err := h.users.DeleteAccount(r.Context(), userID); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, respond.Envelope{Success: true, Message: "Account deleted successfully"})
}
