package repository

import (
	"context"
	"time"

	"github.com/dom/slash-backend/internal/domain"
	"github.com/google/uuid"
)

type UserRepository interface {
	// Upsert creates or updates the user keyed by ExternalSubjectID. created
	// reports whether a new row was inserted.
	Upsert(ctx context.Context, user *domain.User) (result *domain.User, created bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByExternalSubjectID(ctx context.Context, subject string) (*domain.User, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) (*domain.User, error)
	SetTokensValidAfter(ctx context.Context, id uuid.UUID, at time.Time) error
	// Delete removes the user together with their snippets and refresh tokens.
	Delete(ctx context.Context, id uuid.UUID) error
}

type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	// GetActiveByHash returns domain.ErrRefreshTokenNotFound for unknown and
	// expired hashes alike.
	GetActiveByHash(ctx context.Context, hash string, now time.Time) (*domain.RefreshToken, error)
	// Rotate deletes the live record matching oldHash and ownerID and inserts
	// next in one transaction. Only one concurrent caller can delete the row;
	// the others get domain.ErrRefreshTokenNotFound.
	Rotate(ctx context.Context, oldHash string, ownerID uuid.UUID, now time.Time, next *domain.RefreshToken) error
	DeleteByHash(ctx context.Context, hash string) (bool, error)
	DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditEntry) error
	List(ctx context.Context, filter domain.AuditFilter, limit, offset int) ([]*domain.AuditEntry, error)
	Stats(ctx context.Context, filter domain.AuditFilter) (*domain.AuditStats, error)
}

type SnippetRepository interface {
	Create(ctx context.Context, snippet *domain.Snippet) error
	GetByIDAndUserID(ctx context.Context, id, userID uuid.UUID) (*domain.Snippet, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Snippet, error)
	Update(ctx context.Context, snippet *domain.Snippet) error
	Delete(ctx context.Context, id, userID uuid.UUID) (bool, error)
	IncrementUsage(ctx context.Context, id, userID uuid.UUID, at time.Time) (*domain.Snippet, error)
	CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error)
}

type Repositories struct {
	User         UserRepository
	RefreshToken RefreshTokenRepository
	Audit        AuditRepository
	Snippet      SnippetRepository
}
