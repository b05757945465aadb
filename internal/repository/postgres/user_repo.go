package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/dom/slash-backend/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	usersEmailIndex   = "idx_users_email"
	usersSubjectIndex = "idx_users_external_subject_id"
)

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *userRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Upsert(ctx context.Context, user *domain.User) (*domain.User, bool, error) {
	result, created, err := r.upsert(ctx, user)
	if err != nil && uniqueConstraint(err) == usersSubjectIndex {
		// Lost a race with a concurrent first login for the same subject;
		// the row exists now so the retry takes the update path.
		result, created, err = r.upsert(ctx, user)
	}
	if err != nil {
		if uniqueConstraint(err) == usersEmailIndex {
			return nil, false, domain.ErrEmailConflict
		}
		return nil, false, err
	}
	return result, created, nil
}

func (r *userRepository) upsert(ctx context.Context, user *domain.User) (*domain.User, bool, error) {
	var (
		result  domain.User
		created bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&result, "external_subject_id = ?", user.ExternalSubjectID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created = true
			if user.ID == uuid.Nil {
				user.ID = uuid.New()
			}
			if err := tx.Create(user).Error; err != nil {
				return err
			}
			result = *user
			return nil
		}
		if err != nil {
			return err
		}

		err = tx.Model(&domain.User{}).Where("id = ?", result.ID).Updates(map[string]any{
			"email":         user.Email,
			"display_name":  user.DisplayName,
			"avatar_url":    user.AvatarURL,
			"last_login_at": user.LastLoginAt,
			"updated_at":    time.Now(),
		}).Error
		if err != nil {
			return err
		}
		return tx.First(&result, "id = ?", result.ID).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &result, created, nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByExternalSubjectID(ctx context.Context, subject string) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).First(&user, "external_subject_id = ?", subject).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) (*domain.User, error) {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).
		Updates(map[string]any{"last_login_at": at, "updated_at": time.Now()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrUserNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *userRepository) SetTokensValidAfter(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).
		Update("tokens_valid_after", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.Snippet{}, "user_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&domain.RefreshToken{}, "user_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&domain.User{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrUserNotFound
		}
		return nil
	})
}
