package service

import (
	"errors"
	"net/http"

	"github.com/dom/slash-backend/internal/domain"
	"github.com/dom/slash-backend/internal/encryption"
	"github.com/dom/slash-backend/internal/identity"
)

var (
	ErrNoToken             = errors.New("no token provided")
	ErrTokenExpired        = errors.New("access token expired")
	ErrTokenInvalid        = errors.New("invalid access token")
	ErrRefreshTokenInvalid = errors.New("invalid or expired refresh token")
	ErrInvalidAuditStatus  = errors.New("status must be success, failure or error")
	ErrForbidden           = errors.New("admin access required")
	ErrSubjectMismatch     = errors.New("user id does not match the signed-in user")
	ErrSyncFieldsRequired  = errors.New("missing required fields: uid, email, lastLoginAt")
	ErrInvalidEmail        = errors.New("invalid email format")
)

// Failure is the client-facing shape of an error.
type Failure struct {
	Status  int
	Code    string
	Message string
}

// Classify maps an error from any service onto its HTTP status, machine code
// and a message that is safe to show to the client. Unknown errors become a
// generic 500.
func Classify(err error) Failure {
	switch {
	case err == nil:
		return Failure{Status: http.StatusOK}
	case errors.Is(err, ErrNoToken):
		return Failure{http.StatusUnauthorized, "NO_TOKEN", "No token provided"}
	case errors.Is(err, identity.ErrAssertionExpired):
		return Failure{http.StatusUnauthorized, "TOKEN_EXPIRED", "Identity token has expired"}
	case errors.Is(err, identity.ErrAssertionRevoked):
		return Failure{http.StatusUnauthorized, "TOKEN_REVOKED", "Identity token has been revoked"}
	case errors.Is(err, identity.ErrAssertionMalformed), errors.Is(err, identity.ErrAssertionInvalid):
		return Failure{http.StatusUnauthorized, "INVALID_TOKEN", "Invalid identity token"}
	case errors.Is(err, ErrTokenExpired):
		return Failure{http.StatusUnauthorized, "TOKEN_EXPIRED", "Access token has expired"}
	case errors.Is(err, ErrTokenInvalid):
		return Failure{http.StatusUnauthorized, "INVALID_TOKEN", "Invalid access token"}
	case errors.Is(err, ErrRefreshTokenInvalid):
		return Failure{http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Invalid or expired refresh token"}
	case errors.Is(err, ErrForbidden):
		return Failure{http.StatusForbidden, "FORBIDDEN", "Admin access required"}
	case errors.Is(err, ErrSubjectMismatch):
		return Failure{http.StatusForbidden, "USER_ID_MISMATCH", "User ID mismatch"}
	case errors.Is(err, ErrSyncFieldsRequired), errors.Is(err, ErrInvalidEmail):
		return Failure{http.StatusBadRequest, "VALIDATION_ERROR", err.Error()}
	case errors.Is(err, domain.ErrMissingEmail):
		return Failure{http.StatusBadRequest, "NO_EMAIL", "Identity token has no email address"}
	case errors.Is(err, domain.ErrEmailConflict):
		return Failure{http.StatusConflict, "EMAIL_CONFLICT", "Email is already registered to another account"}
	case errors.Is(err, domain.ErrUserNotFound):
		return Failure{http.StatusNotFound, "USER_NOT_FOUND", "User not found"}
	case errors.Is(err, domain.ErrSnippetNotFound):
		return Failure{http.StatusNotFound, "SNIPPET_NOT_FOUND", "Snippet not found"}
	case errors.Is(err, domain.ErrDuplicateKeyword):
		return Failure{http.StatusConflict, "DUPLICATE_KEYWORD", "A snippet with this keyword already exists"}
	case errors.Is(err, domain.ErrKeywordRequired), errors.Is(err, domain.ErrInvalidKeyword):
		return Failure{http.StatusBadRequest, "VALIDATION_ERROR", err.Error()}
	case errors.Is(err, ErrInvalidAuditStatus):
		return Failure{http.StatusBadRequest, "INVALID_STATUS", "Invalid status. Must be: success, failure, or error"}
	case errors.Is(err, encryption.ErrAuthenticationFailure):
		return Failure{http.StatusInternalServerError, "SERVER_ERROR", "Internal server error"}
	default:
		return Failure{http.StatusInternalServerError, "SERVER_ERROR", "Internal server error"}
	}
}
