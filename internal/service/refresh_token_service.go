package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dom/slash-backend/internal/domain"
	"github.com/dom/slash-backend/internal/metrics"
	"github.com/dom/slash-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	refreshTokenPrefix = "rtk_"
	refreshTokenBytes  = 32
)

// RefreshTokenService issues and rotates opaque refresh tokens. Only an
// HMAC-SHA256 of each bearer value is stored; the bearer itself is returned
// once and never persisted or logged.
type RefreshTokenService struct {
	repo   repository.RefreshTokenRepository
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	rand   io.Reader
}

func NewRefreshTokenService(repo repository.RefreshTokenRepository, secret string, ttl time.Duration) *RefreshTokenService {
	return &RefreshTokenService{
		repo:   repo,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
		rand:   rand.Reader,
	}
}

func (s *RefreshTokenService) TTL() time.Duration {
	return s.ttl
}

// Issue creates a new refresh token for ownerID and returns the bearer value.
func (s *RefreshTokenService) Issue(ctx context.Context, ownerID uuid.UUID) (string, *domain.RefreshToken, error) {
	bearer, record, err := s.mint(ownerID)
	if err != nil {
		return "", nil, err
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return "", nil, fmt.Errorf("store refresh token: %w", err)
	}
	return bearer, record, nil
}

// Lookup returns the live record for bearer. Unknown and expired tokens both
// yield ErrRefreshTokenInvalid.
func (s *RefreshTokenService) Lookup(ctx context.Context, bearer string) (*domain.RefreshToken, error) {
	if bearer == "" {
		return nil, ErrRefreshTokenInvalid
	}
	record, err := s.repo.GetActiveByHash(ctx, s.hash(bearer), s.now())
	if errors.Is(err, domain.ErrRefreshTokenNotFound) {
		return nil, ErrRefreshTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	return record, nil
}

// Rotate atomically replaces oldBearer with a fresh token. Of several
// concurrent rotations of the same token at most one succeeds; the rest get
// ErrRefreshTokenInvalid.
func (s *RefreshTokenService) Rotate(ctx context.Context, oldBearer string, ownerID uuid.UUID) (string, *domain.RefreshToken, error) {
	if oldBearer == "" {
		return "", nil, ErrRefreshTokenInvalid
	}
	bearer, record, err := s.mint(ownerID)
	if err != nil {
		return "", nil, err
	}

	err = s.repo.Rotate(ctx, s.hash(oldBearer), ownerID, s.now(), record)
	if errors.Is(err, domain.ErrRefreshTokenNotFound) {
		return "", nil, ErrRefreshTokenInvalid
	}
	if err != nil {
		return "", nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	return bearer, record, nil
}

// Revoke deletes the record for bearer. It reports whether a record existed.
func (s *RefreshTokenService) Revoke(ctx context.Context, bearer string) (bool, error) {
	if bearer == "" {
		return false, nil
	}
	return s.repo.DeleteByHash(ctx, s.hash(bearer))
}

func (s *RefreshTokenService) RevokeAll(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	return s.repo.DeleteByUserID(ctx, ownerID)
}

func (s *RefreshTokenService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	metrics.RefreshTokensPurged.Add(float64(n))
	return n, nil
}

// RunPurger calls PurgeExpired every interval until ctx is done.
func (s *RefreshTokenService) RunPurger(ctx context.Context, interval time.Duration) {
	logger := log.With().Str("component", "service.RunPurger").Logger()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("failed to purge expired refresh tokens")
				continue
			}
			if n > 0 {
				logger.Info().Int64("purged", n).Msg("purged expired refresh tokens")
			}
		}
	}
}

func (s *RefreshTokenService) mint(ownerID uuid.UUID) (string, *domain.RefreshToken, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := io.ReadFull(s.rand, buf); err != nil {
		return "", nil, fmt.Errorf("generate refresh token: %w", err)
	}
	bearer := refreshTokenPrefix + hex.EncodeToString(buf)

	now := s.now()
	return bearer, &domain.RefreshToken{
		ID:         uuid.New(),
		UserID:     ownerID,
		TokenHash:  s.hash(bearer),
		ExpiresAt:  now.Add(s.ttl),
		LastUsedAt: now,
		CreatedAt:  now,
	}, nil
}

func (s *RefreshTokenService) hash(bearer string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(bearer))
	return hex.EncodeToString(mac.Sum(nil))
}
