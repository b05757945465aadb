package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/dom/slash-backend/internal/domain"
	"github.com/dom/slash-backend/internal/repository"
	"github.com/google/uuid"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ProfileSync is the profile a client pushes after signing in with the
// identity provider.
type ProfileSync struct {
	Subject     string
	Email       string
	DisplayName *string
	AvatarURL   *string
	LastLoginAt time.Time
}

type UserService struct {
	users    repository.UserRepository
	snippets repository.SnippetRepository
	now      func() time.Time
}

func NewUserService(users repository.UserRepository, snippets repository.SnippetRepository) *UserService {
	return &UserService{
		users:    users,
		snippets: snippets,
		now:      time.Now,
	}
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) Stats(ctx context.Context, id uuid.UUID) (*domain.UserStats, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := s.snippets.CountByUserID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.UserStats{
		UserID:       user.ID,
		Email:        user.Email,
		MemberSince:  user.CreatedAt,
		LastLogin:    user.LastLoginAt,
		SnippetCount: count,
	}, nil
}

func (s *UserService) UpdateLastLogin(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.users.TouchLastLogin(ctx, id, s.now())
}

// DeleteAccount removes the user, their snippets and every refresh token in
// one transaction.
func (s *UserService) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	return s.users.Delete(ctx, id)
}

// Sync applies a client-pushed profile to the caller. The subject must be the
// caller's own; omitted display name and avatar keep their stored values.
func (s *UserService) Sync(ctx context.Context, id uuid.UUID, p ProfileSync) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Subject != user.ExternalSubjectID {
		return nil, ErrSubjectMismatch
	}

	email := domain.NormalizeEmail(p.Email)
	if email == "" || p.LastLoginAt.IsZero() {
		return nil, ErrSyncFieldsRequired
	}
	if !emailPattern.MatchString(email) {
		return nil, ErrInvalidEmail
	}

	update := &domain.User{
		ExternalSubjectID: user.ExternalSubjectID,
		Email:             email,
		DisplayName:       user.DisplayName,
		AvatarURL:         user.AvatarURL,
		LastLoginAt:       p.LastLoginAt,
	}
	if p.DisplayName != nil {
		update.DisplayName = optional(strings.TrimSpace(*p.DisplayName))
	}
	if p.AvatarURL != nil {
		update.AvatarURL = optional(strings.TrimSpace(*p.AvatarURL))
	}

	synced, _, err := s.users.Upsert(ctx, update)
	return synced, err
}
