package service

import (
	"github.com/dom/slash-backend/internal/config"
	"github.com/dom/slash-backend/internal/encryption"
	"github.com/dom/slash-backend/internal/identity"
	"github.com/dom/slash-backend/internal/repository"
)

type Services struct {
	Tokens   *TokenService
	Refresh  *RefreshTokenService
	Recorder *AuditRecorder
	Audit    *AuditService
	Session  *SessionService
	Snippet  *SnippetService
	User     *UserService
}

// NewServices wires every service. verifier is the ready identity oracle
// handle; notifier may be nil.
func NewServices(repos *repository.Repositories, cfg *config.Config, verifier identity.TokenVerifier, notifier SnippetNotifier) *Services {
	tokens := NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL())
	refresh := NewRefreshTokenService(repos.RefreshToken, cfg.RefreshTokenSecret, cfg.RefreshTokenTTL())
	recorder := NewAuditRecorder(repos.Audit, cfg.AuditQueueSize, cfg.AuditWorkers)
	broker := identity.NewBroker(verifier, identity.WithRevocationChecker(userRevocations{users: repos.User}))

	return &Services{
		Tokens:   tokens,
		Refresh:  refresh,
		Recorder: recorder,
		Audit:    NewAuditService(repos.Audit),
		Session:  NewSessionService(broker, repos.User, tokens, refresh, recorder),
		Snippet:  NewSnippetService(repos.Snippet, encryption.NewService(), notifier),
		User:     NewUserService(repos.User, repos.Snippet),
	}
}

// Close flushes pending audit entries.
func (s *Services) Close() {
	s.Recorder.Close()
}
