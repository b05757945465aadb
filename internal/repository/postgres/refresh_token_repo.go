package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/dom/slash-backend/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type refreshTokenRepository struct {
	db *gorm.DB
}

func NewRefreshTokenRepository(db *gorm.DB) *refreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

func (r *refreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *refreshTokenRepository) GetActiveByHash(ctx context.Context, hash string, now time.Time) (*domain.RefreshToken, error) {
	var token domain.RefreshToken
	err := r.db.WithContext(ctx).
		Where("token_hash = ? AND expires_at > ?", hash, now).
		First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRefreshTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *refreshTokenRepository) Rotate(ctx context.Context, oldHash string, ownerID uuid.UUID, now time.Time, next *domain.RefreshToken) error {
	if next.ID == uuid.Nil {
		next.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A concurrent rotation of the same row blocks on the row lock and then
		// re-checks the predicate against the deleted row, affecting nothing.
		res := tx.Where("token_hash = ? AND user_id = ? AND expires_at > ?", oldHash, ownerID, now).
			Delete(&domain.RefreshToken{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return domain.ErrRefreshTokenNotFound
		}
		return tx.Create(next).Error
	})
}

func (r *refreshTokenRepository) DeleteByHash(ctx context.Context, hash string) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&domain.RefreshToken{}, "token_hash = ?", hash)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *refreshTokenRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&domain.RefreshToken{}, "user_id = ?", userID)
	return res.RowsAffected, res.Error
}

func (r *refreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&domain.RefreshToken{}, "expires_at <= ?", now)
	return res.RowsAffected, res.Error
}
