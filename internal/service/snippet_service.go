package service

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/dom/slash-backend/internal/domain"
	"github.com/dom/slash-backend/internal/encryption"
	"github.com/dom/slash-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Snippet change events published to the owner's other sessions.
const (
	EventSnippetCreated = "snippet.created"
	EventSnippetUpdated = "snippet.updated"
	EventSnippetDeleted = "snippet.deleted"
	EventSnippetUsed    = "snippet.used"
)

// SnippetNotifier fans snippet changes out to a user's live connections.
type SnippetNotifier interface {
	Publish(userID uuid.UUID, event string, payload interface{})
}

type SnippetInput struct {
	Keyword string
	Value   string
}

func (in SnippetInput) validate() (SnippetInput, error) {
	in.Keyword = strings.TrimSpace(in.Keyword)
	if in.Keyword == "" || in.Value == "" {
		return in, domain.ErrKeywordRequired
	}
	if !strings.HasPrefix(in.Keyword, "/") {
		return in, domain.ErrInvalidKeyword
	}
	return in, nil
}

type SnippetService struct {
	repo     repository.SnippetRepository
	enc      *encryption.Service
	notifier SnippetNotifier
	now      func() time.Time
}

func NewSnippetService(repo repository.SnippetRepository, enc *encryption.Service, notifier SnippetNotifier) *SnippetService {
	return &SnippetService{
		repo:     repo,
		enc:      enc,
		notifier: notifier,
		now:      time.Now,
	}
}

// List returns the user's snippets with values decrypted, newest first. Each
// record needs its own PBKDF2 run, so records are opened in parallel.
func (s *SnippetService) List(ctx context.Context, userID uuid.UUID) ([]*domain.DecryptedSnippet, error) {
	snippets, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.DecryptedSnippet, len(snippets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, snippet := range snippets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, err := s.open(snippet)
			if err != nil {
				return err
			}
			out[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SnippetService) Get(ctx context.Context, userID, id uuid.UUID) (*domain.DecryptedSnippet, error) {
	snippet, err := s.repo.GetByIDAndUserID(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return s.open(snippet)
}

func (s *SnippetService) Create(ctx context.Context, userID uuid.UUID, input SnippetInput) (*domain.DecryptedSnippet, error) {
	input, err := input.validate()
	if err != nil {
		return nil, err
	}

	now := s.now()
	snippet := &domain.Snippet{
		ID:        uuid.New(),
		UserID:    userID,
		Keyword:   input.Keyword,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.seal(snippet, input.Value); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, snippet); err != nil {
		return nil, err
	}

	result := decrypted(snippet, input.Value)
	s.publish(userID, EventSnippetCreated, result)
	return result, nil
}

// Update replaces keyword and value. The value is always re-encrypted under
// the key derived from the new keyword.
func (s *SnippetService) Update(ctx context.Context, userID, id uuid.UUID, input SnippetInput) (*domain.DecryptedSnippet, error) {
	input, err := input.validate()
	if err != nil {
		return nil, err
	}

	snippet, err := s.repo.GetByIDAndUserID(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	snippet.Keyword = input.Keyword
	if err := s.seal(snippet, input.Value); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, snippet); err != nil {
		return nil, err
	}

	result := decrypted(snippet, input.Value)
	s.publish(userID, EventSnippetUpdated, result)
	return result, nil
}

func (s *SnippetService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, id, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrSnippetNotFound
	}
	s.publish(userID, EventSnippetDeleted, map[string]string{"id": id.String()})
	return nil
}

func (s *SnippetService) IncrementUsage(ctx context.Context, userID, id uuid.UUID) (*domain.DecryptedSnippet, error) {
	snippet, err := s.repo.IncrementUsage(ctx, id, userID, s.now())
	if err != nil {
		return nil, err
	}
	result, err := s.open(snippet)
	if err != nil {
		return nil, err
	}
	s.publish(userID, EventSnippetUsed, map[string]interface{}{
		"id":         id.String(),
		"usageCount": snippet.UsageCount,
		"lastUsed":   snippet.LastUsed,
	})
	return result, nil
}

func (s *SnippetService) seal(snippet *domain.Snippet, value string) error {
	key := s.enc.DeriveKey(snippet.Keyword, snippet.UserID.String())
	secret, err := s.enc.Encrypt(value, key)
	if err != nil {
		return fmt.Errorf("encrypt snippet value: %w", err)
	}
	snippet.ValueCiphertext = secret.Ciphertext
	snippet.ValueTag = secret.Tag
	snippet.ValueIV = secret.IV
	return nil
}

func (s *SnippetService) open(snippet *domain.Snippet) (*domain.DecryptedSnippet, error) {
	key := s.enc.DeriveKey(snippet.Keyword, snippet.UserID.String())
	value, err := s.enc.Decrypt(encryption.Secret{
		Ciphertext: snippet.ValueCiphertext,
		Tag:        snippet.ValueTag,
		IV:         snippet.ValueIV,
	}, key)
	if err != nil {
		log.Error().
			Err(err).
			Str("component", "service.SnippetService").
			Str("snippetId", snippet.ID.String()).
			Msg("snippet value failed integrity check")
		return nil, fmt.Errorf("decrypt snippet %s: %w", snippet.ID, err)
	}
	return decrypted(snippet, value), nil
}

func (s *SnippetService) publish(userID uuid.UUID, event string, payload interface{}) {
	if s.notifier != nil {
		s.notifier.Publish(userID, event, payload)
	}
}

func decrypted(snippet *domain.Snippet, value string) *domain.DecryptedSnippet {
	return &domain.DecryptedSnippet{
		ID:         snippet.ID,
		Keyword:    snippet.Keyword,
		Value:      value,
		UsageCount: snippet.UsageCount,
		LastUsed:   snippet.LastUsed,
		CreatedAt:  snippet.CreatedAt,
		UpdatedAt:  snippet.UpdatedAt,
	}
}
