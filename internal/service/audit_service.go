package service

import (
	"context"

	"github.com/dom/slash-backend/internal/domain"
	"github.com/dom/slash-backend/internal/repository"
)

const (
	DefaultAuditLimit = 50
	MaxAuditLimit     = 200
)

// Page is limit/skip pagination. Out of range values are clamped.
type Page struct {
	Limit int
	Skip  int
}

func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultAuditLimit
	}
	if p.Limit > MaxAuditLimit {
		p.Limit = MaxAuditLimit
	}
	if p.Skip < 0 {
		p.Skip = 0
	}
	return p
}

// AuditService reads the audit trail. Writes go through AuditRecorder.
type AuditService struct {
	repo repository.AuditRepository
}

func NewAuditService(repo repository.AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

func (s *AuditService) List(ctx context.Context, filter domain.AuditFilter, page Page) ([]*domain.AuditEntry, Page, error) {
	page = page.normalize()
	entries, err := s.repo.List(ctx, filter, page.Limit, page.Skip)
	if err != nil {
		return nil, page, err
	}
	return entries, page, nil
}

func (s *AuditService) Stats(ctx context.Context, filter domain.AuditFilter) (*domain.AuditStats, error) {
	return s.repo.Stats(ctx, filter)
}

func ParseAuditStatus(raw string) (domain.AuditStatus, error) {
	status := domain.AuditStatus(raw)
	if !status.Valid() {
		return "", ErrInvalidAuditStatus
	}
	return status, nil
}
