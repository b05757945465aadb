package postgres

import (
	"context"

	"github.com/dom/slash-backend/internal/domain"
	"gorm.io/gorm"
)

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *auditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *domain.AuditEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *auditRepository) List(ctx context.Context, filter domain.AuditFilter, limit, offset int) ([]*domain.AuditEntry, error) {
	var entries []*domain.AuditEntry
	err := r.filtered(ctx, filter).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *auditRepository) Stats(ctx context.Context, filter domain.AuditFilter) (*domain.AuditStats, error) {
	var stats domain.AuditStats
	err := r.filtered(ctx, filter).
		Select(`COUNT(*) AS total_logs,
			COUNT(*) FILTER (WHERE status = ?) AS success_count,
			COUNT(*) FILTER (WHERE status = ?) AS failure_count,
			COUNT(*) FILTER (WHERE status = ?) AS error_count`,
			domain.AuditStatusSuccess, domain.AuditStatusFailure, domain.AuditStatusError).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *auditRepository) filtered(ctx context.Context, filter domain.AuditFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&domain.AuditEntry{})
	if filter.ActorID != nil {
		q = q.Where("actor_id = ?", *filter.ActorID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.Resource != "" {
		q = q.Where("resource = ?", filter.Resource)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	return q
}
