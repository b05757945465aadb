package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/dom/slash-backend/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const snippetsKeywordIndex = "idx_snippets_user_keyword"

type snippetRepository struct {
	db *gorm.DB
}

func NewSnippetRepository(db *gorm.DB) *snippetRepository {
	return &snippetRepository{db: db}
}

func (r *snippetRepository) Create(ctx context.Context, snippet *domain.Snippet) error {
	if snippet.ID == uuid.Nil {
		snippet.ID = uuid.New()
	}
	err := r.db.WithContext(ctx).Create(snippet).Error
	if uniqueConstraint(err) == snippetsKeywordIndex {
		return domain.ErrDuplicateKeyword
	}
	return err
}

func (r *snippetRepository) GetByIDAndUserID(ctx context.Context, id, userID uuid.UUID) (*domain.Snippet, error) {
	var snippet domain.Snippet
	err := r.db.WithContext(ctx).First(&snippet, "id = ? AND user_id = ?", id, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSnippetNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snippet, nil
}

func (r *snippetRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Snippet, error) {
	var snippets []*domain.Snippet
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&snippets).Error
	if err != nil {
		return nil, err
	}
	return snippets, nil
}

func (r *snippetRepository) Update(ctx context.Context, snippet *domain.Snippet) error {
	snippet.UpdatedAt = time.Now()
	res := r.db.WithContext(ctx).Model(&domain.Snippet{}).
		Where("id = ? AND user_id = ?", snippet.ID, snippet.UserID).
		Updates(map[string]any{
			"keyword":          snippet.Keyword,
			"value_ciphertext": snippet.ValueCiphertext,
			"value_tag":        snippet.ValueTag,
			"value_iv":         snippet.ValueIV,
			"updated_at":       snippet.UpdatedAt,
		})
	if uniqueConstraint(res.Error) == snippetsKeywordIndex {
		return domain.ErrDuplicateKeyword
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrSnippetNotFound
	}
	return nil
}

func (r *snippetRepository) Delete(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&domain.Snippet{}, "id = ? AND user_id = ?", id, userID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *snippetRepository) IncrementUsage(ctx context.Context, id, userID uuid.UUID, at time.Time) (*domain.Snippet, error) {
	res := r.db.WithContext(ctx).Model(&domain.Snippet{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{
			"usage_count": gorm.Expr("usage_count + 1"),
			"last_used":   at,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrSnippetNotFound
	}
	return r.GetByIDAndUserID(ctx, id, userID)
}

func (r *snippetRepository) CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Snippet{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
