package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dom/slash-backend/internal/domain"
	"github.com/dom/slash-backend/internal/identity"
	"github.com/dom/slash-backend/internal/metrics"
	"github.com/dom/slash-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	actionExchange  = "exchange"
	actionRefresh   = "token_refresh"
	actionLogout    = "logout"
	actionLogoutAll = "logout_all"
	resourceAuth    = "auth"
)

// RequestMeta is the request context recorded with session audit entries.
type RequestMeta struct {
	Method    string
	Path      string
	IP        string
	UserAgent string
	RequestID string
}

type Session struct {
	User         *domain.User
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	Created      bool
}

// SessionService composes identity verification, access tokens and refresh
// tokens into the exchange, refresh and logout flows. Every flow records an
// audit entry whether it succeeds or not.
type SessionService struct {
	broker  *identity.Broker
	users   repository.UserRepository
	tokens  *TokenService
	refresh *RefreshTokenService
	audit   Auditor
	now     func() time.Time
}

func NewSessionService(broker *identity.Broker, users repository.UserRepository, tokens *TokenService, refresh *RefreshTokenService, audit Auditor) *SessionService {
	return &SessionService{
		broker:  broker,
		users:   users,
		tokens:  tokens,
		refresh: refresh,
		audit:   audit,
		now:     time.Now,
	}
}

// Exchange trades an identity assertion for an access and refresh token pair,
// creating or updating the user keyed by the assertion subject.
func (s *SessionService) Exchange(ctx context.Context, assertion string, meta RequestMeta) (result *Session, err error) {
	start := s.now()
	var user *domain.User
	defer func() {
		details := map[string]any{"operation": "user_sync"}
		if result != nil {
			details["created"] = result.Created
		}
		s.record(meta, actionExchange, user, start, err, details)
	}()

	if strings.TrimSpace(assertion) == "" {
		return nil, ErrNoToken
	}

	claims, err := s.broker.VerifyAssertion(ctx, assertion)
	if err != nil {
		log.Warn().Err(err).Str("component", "service.Exchange").Msg("identity assertion rejected")
		return nil, err
	}

	email := domain.NormalizeEmail(claims.Email)
	if email == "" {
		return nil, domain.ErrMissingEmail
	}

	displayName := claims.DisplayName
	if displayName == nil {
		local := email
		if at := strings.IndexByte(email, '@'); at > 0 {
			local = email[:at]
		}
		displayName = &local
	}

	user, created, err := s.users.Upsert(ctx, &domain.User{
		ID:                uuid.New(),
		ExternalSubjectID: claims.SubjectID,
		Email:             email,
		DisplayName:       displayName,
		AvatarURL:         claims.AvatarURL,
		LastLoginAt:       start,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrEmailConflict) {
			log.Error().Err(err).Str("component", "service.Exchange").Msg("failed to upsert user")
		}
		return nil, err
	}

	session, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	session.Created = created
	return session, nil
}

// Refresh rotates a refresh token and mints a new access token. The presented
// token is invalid afterwards even if the response never reaches the client.
func (s *SessionService) Refresh(ctx context.Context, bearer string, meta RequestMeta) (result *Session, err error) {
	start := s.now()
	var user *domain.User
	defer func() {
		s.record(meta, actionRefresh, user, start, err, nil)
	}()

	if bearer == "" {
		return nil, ErrNoToken
	}

	record, err := s.refresh.Lookup(ctx, bearer)
	if err != nil {
		return nil, err
	}

	user, err = s.users.GetByID(ctx, record.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		if _, revokeErr := s.refresh.Revoke(ctx, bearer); revokeErr != nil {
			log.Error().Err(revokeErr).Str("component", "service.Refresh").Msg("failed to revoke orphaned refresh token")
		}
		return nil, ErrRefreshTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	newBearer, _, err := s.refresh.Rotate(ctx, bearer, user.ID)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.tokens.MintAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	return &Session{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: newBearer,
		ExpiresIn:    int64(s.tokens.TTL().Seconds()),
	}, nil
}

// Logout revokes the presented refresh token. It never fails: a missing or
// already invalid token means the session is already logged out.
func (s *SessionService) Logout(ctx context.Context, bearer string, meta RequestMeta) {
	start := s.now()
	revoked, err := s.refresh.Revoke(ctx, bearer)
	if err != nil {
		log.Error().Err(err).Str("component", "service.Logout").Msg("failed to revoke refresh token")
	}
	s.record(meta, actionLogout, nil, start, nil, map[string]any{"revoked": revoked})
}

// LogoutAll revokes every refresh token of the user and rejects identity
// assertions issued before now.
func (s *SessionService) LogoutAll(ctx context.Context, user *domain.User, meta RequestMeta) (revoked int64, err error) {
	start := s.now()
	defer func() {
		s.record(meta, actionLogoutAll, user, start, err, map[string]any{"revoked": revoked})
	}()

	// Assertions carry second precision; anything issued up to and including
	// this second is rejected.
	cutoff := start.Truncate(time.Second)
	if err := s.users.SetTokensValidAfter(ctx, user.ID, cutoff); err != nil {
		return 0, err
	}
	return s.refresh.RevokeAll(ctx, user.ID)
}

func (s *SessionService) issue(ctx context.Context, user *domain.User) (*Session, error) {
	accessToken, err := s.tokens.MintAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	refreshToken, _, err := s.refresh.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.tokens.TTL().Seconds()),
	}, nil
}

func (s *SessionService) record(meta RequestMeta, action string, user *domain.User, start time.Time, err error, details map[string]any) {
	failure := Classify(err)
	status := domain.AuditStatusFromCode(failure.Status)
	metrics.SessionEvents.WithLabelValues(action, string(status)).Inc()

	if err != nil {
		if details == nil {
			details = map[string]any{}
		}
		details["code"] = failure.Code
	}

	in := AuditInput{
		Action:     action,
		Resource:   resourceAuth,
		Method:     meta.Method,
		Path:       meta.Path,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		RequestID:  meta.RequestID,
		StatusCode: failure.Status,
		Details:    details,
		Duration:   s.now().Sub(start),
	}
	if user != nil {
		id := user.ID
		in.ActorID = &id
		in.ActorEmail = user.Email
		in.ResourceID = user.ID.String()
	}
	s.audit.Record(in)
}

// userRevocations serves identity.RevocationChecker from the users table.
type userRevocations struct {
	users repository.UserRepository
}

func (r userRevocations) ValidAfter(ctx context.Context, subject string) (time.Time, bool, error) {
	user, err := r.users.GetByExternalSubjectID(ctx, subject)
	if errors.Is(err, domain.ErrUserNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	if user.TokensValidAfter == nil {
		return time.Time{}, false, nil
	}
	return *user.TokensValidAfter, true, nil
}
