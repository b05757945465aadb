package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/dom/slash-backend/internal/api/respond"
	"github.com/dom/slash-backend/internal/service"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	IdentityKey contextKey = "identity"
)

// Identity is the caller resolved from a verified access token.
type Identity struct {
	UserID uuid.UUID
	Email  string
}

// BearerToken returns the token of an "Authorization: Bearer" header, or "".
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Auth verifies the access token locally and attaches the Identity to the
// request. Failures answer 401 before any handler runs.
func Auth(tokens *service.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				respond.Error(w, r, service.ErrNoToken)
				return
			}

			claims, err := tokens.VerifyAccessToken(token)
			if err != nil {
				log.Debug().Err(err).Str("component", "middleware.Auth").Msg("access token rejected")
				respond.Error(w, r, err)
				return
			}

			// VerifyAccessToken guarantees a parseable subject.
			userID, _ := claims.UserID()
			if s := respond.FromContext(r.Context()); s != nil {
				s.SetActor(userID.String(), claims.Email)
			}

			ctx := context.WithValue(r.Context(), IdentityKey, Identity{UserID: userID, Email: claims.Email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(Identity)
	return id, ok
}

func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := GetIdentity(ctx)
	return id.UserID, ok
}

// RequireAdmin only lets through callers whose email isAdmin accepts.
func RequireAdmin(isAdmin func(email string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := GetIdentity(r.Context())
			if !ok || !isAdmin(id.Email) {
				respond.Error(w, r, service.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
