package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/dom/slash-backend/internal/domain"
	"github.com/dom/slash-backend/internal/repository/postgres"
	"github.com/dom/slash-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sealed(userID uuid.UUID, keyword string) *domain.Snippet {
	return &domain.Snippet{
		UserID:          userID,
		Keyword:         keyword,
		ValueCiphertext: "deadbeef",
		ValueTag:        "00112233445566778899aabbccddeeff",
		ValueIV:         "000102030405060708090a0b",
	}
}

func TestSnippetRepository_Create(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewSnippetRepository(testDB.DB)
	ctx := context.Background()

	owner := testutil.NewUserBuilder().Build(t, testDB.DB)
	other := testutil.NewUserBuilder().Build(t, testDB.DB)
	require.NoError(t, repo.Create(ctx, sealed(owner.ID, "/addr")))

	tests := []struct {
		name    string
		snippet *domain.Snippet
		wantErr error
	}{
		{
			name:    "new keyword",
			snippet: sealed(owner.ID, "/phone"),
		},
		{
			name:    "same keyword for another user",
			snippet: sealed(other.ID, "/addr"),
		},
		{
			name:    "duplicate keyword for owner",
			snippet: sealed(owner.ID, "/addr"),
			wantErr: domain.ErrDuplicateKeyword,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Create(ctx, tt.snippet)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, tt.snippet.ID)
		})
	}
}

func TestSnippetRepository_OwnerScoping(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewSnippetRepository(testDB.DB)
	ctx := context.Background()

	owner := testutil.NewUserBuilder().Build(t, testDB.DB)
	other := testutil.NewUserBuilder().Build(t, testDB.DB)
	snippet := sealed(owner.ID, "/sig")
	require.NoError(t, repo.Create(ctx, snippet))

	_, err := repo.GetByIDAndUserID(ctx, snippet.ID, other.ID)
	assert.ErrorIs(t, err, domain.ErrSnippetNotFound)

	_, err = repo.IncrementUsage(ctx, snippet.ID, other.ID, time.Now())
	assert.ErrorIs(t, err, domain.ErrSnippetNotFound)

	foreign := *snippet
	foreign.UserID = other.ID
	foreign.Keyword = "/stolen"
	assert.ErrorIs(t, repo.Update(ctx, &foreign), domain.ErrSnippetNotFound)

	deleted, err := repo.Delete(ctx, snippet.ID, other.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	got, err := repo.GetByIDAndUserID(ctx, snippet.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "/sig", got.Keyword)
}

func TestSnippetRepository_UpdateAndUsage(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewSnippetRepository(testDB.DB)
	ctx := context.Background()

	owner := testutil.NewUserBuilder().Build(t, testDB.DB)
	first := sealed(owner.ID, "/one")
	second := sealed(owner.ID, "/two")
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	t.Run("rename onto an existing keyword", func(t *testing.T) {
		clash := *second
		clash.Keyword = "/one"
		assert.ErrorIs(t, repo.Update(ctx, &clash), domain.ErrDuplicateKeyword)
	})

	t.Run("rename moves snippet to the front", func(t *testing.T) {
		renamed := *first
		renamed.Keyword = "/uno"
		require.NoError(t, repo.Update(ctx, &renamed))

		list, err := repo.ListByUserID(ctx, owner.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "/uno", list[0].Keyword)
	})

	t.Run("usage increments", func(t *testing.T) {
		at := time.Now()
		for i := 0; i < 3; i++ {
			_, err := repo.IncrementUsage(ctx, second.ID, owner.ID, at)
			require.NoError(t, err)
		}
		got, err := repo.GetByIDAndUserID(ctx, second.ID, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.UsageCount)
		require.NotNil(t, got.LastUsed)
		assert.WithinDuration(t, at, *got.LastUsed, time.Millisecond)
	})

	t.Run("delete", func(t *testing.T) {
		deleted, err := repo.Delete(ctx, second.ID, owner.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		count, err := repo.CountByUserID(ctx, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}
