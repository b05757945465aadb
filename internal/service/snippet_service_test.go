package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/dom/slash-backend/internal/domain"
	"github.com/dom/slash-backend/internal/encryption"
	"github.com/dom/slash-backend/internal/repository/postgres"
	"github.com/dom/slash-backend/internal/service"
	"github.com/dom/slash-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedEvent struct {
	userID uuid.UUID
	event  string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (n *recordingNotifier) Publish(userID uuid.UUID, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, publishedEvent{userID: userID, event: event})
}

func (n *recordingNotifier) names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.event)
	}
	return out
}

func TestSnippetService_Create(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	svc := service.NewSnippetService(repos.Snippet, encryption.NewService(), nil)
	ctx := context.Background()

	user := testutil.NewUserBuilder().Build(t, testDB.DB)
	_, err := svc.Create(ctx, user.ID, service.SnippetInput{Keyword: "/taken", Value: "x"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   service.SnippetInput
		wantErr error
	}{
		{name: "valid", input: service.SnippetInput{Keyword: " /addr ", Value: "221B Baker Street"}},
		{name: "missing keyword", input: service.SnippetInput{Value: "v"}, wantErr: domain.ErrKeywordRequired},
		{name: "missing value", input: service.SnippetInput{Keyword: "/empty"}, wantErr: domain.ErrKeywordRequired},
		{name: "no slash", input: service.SnippetInput{Keyword: "addr", Value: "v"}, wantErr: domain.ErrInvalidKeyword},
		{name: "duplicate keyword", input: service.SnippetInput{Keyword: "/taken", Value: "y"}, wantErr: domain.ErrDuplicateKeyword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Create(ctx, user.ID, tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "/addr", got.Keyword)
			assert.Equal(t, tt.input.Value, got.Value)
			assert.Zero(t, got.UsageCount)

			var stored domain.Snippet
			require.NoError(t, testDB.DB.First(&stored, "id = ?", got.ID).Error)
			assert.NotContains(t, stored.ValueCiphertext, tt.input.Value)
			assert.Len(t, stored.ValueIV, 24)
			assert.Len(t, stored.ValueTag, 32)
		})
	}
}

func TestSnippetService_ListDecryptsEverySnippet(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	svc := service.NewSnippetService(repos.Snippet, encryption.NewService(), nil)
	ctx := context.Background()

	user := testutil.NewUserBuilder().Build(t, testDB.DB)
	other := testutil.NewUserBuilder().Build(t, testDB.DB)

	want := map[string]string{}
	for i := 0; i < 6; i++ {
		kw := fmt.Sprintf("/k%d", i)
		want[kw] = fmt.Sprintf("value %d", i)
		_, err := svc.Create(ctx, user.ID, service.SnippetInput{Keyword: kw, Value: want[kw]})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, other.ID, service.SnippetInput{Keyword: "/k0", Value: "someone else"})
	require.NoError(t, err)

	list, err := svc.List(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, len(want))
	for _, s := range list {
		assert.Equal(t, want[s.Keyword], s.Value)
	}

	empty, err := svc.List(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSnippetService_UpdateReencrypts(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	notifier := &recordingNotifier{}
	svc := service.NewSnippetService(repos.Snippet, encryption.NewService(), notifier)
	ctx := context.Background()

	user := testutil.NewUserBuilder().Build(t, testDB.DB)
	created, err := svc.Create(ctx, user.ID, service.SnippetInput{Keyword: "/old", Value: "same value"})
	require.NoError(t, err)

	var before domain.Snippet
	require.NoError(t, testDB.DB.First(&before, "id = ?", created.ID).Error)

	updated, err := svc.Update(ctx, user.ID, created.ID, service.SnippetInput{Keyword: "/new", Value: "same value"})
	require.NoError(t, err)
	assert.Equal(t, "/new", updated.Keyword)

	var after domain.Snippet
	require.NoError(t, testDB.DB.First(&after, "id = ?", created.ID).Error)
	assert.NotEqual(t, before.ValueIV, after.ValueIV)
	assert.NotEqual(t, before.ValueCiphertext+before.ValueTag, after.ValueCiphertext+after.ValueTag)

	got, err := svc.Get(ctx, user.ID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "same value", got.Value)

	_, err = svc.Update(ctx, uuid.New(), created.ID, service.SnippetInput{Keyword: "/x", Value: "y"})
	assert.ErrorIs(t, err, domain.ErrSnippetNotFound)

	used, err := svc.IncrementUsage(ctx, user.ID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, used.UsageCount)
	assert.NotNil(t, used.LastUsed)

	require.NoError(t, svc.Delete(ctx, user.ID, created.ID))
	assert.ErrorIs(t, svc.Delete(ctx, user.ID, created.ID), domain.ErrSnippetNotFound)

	assert.Equal(t, []string{
		service.EventSnippetCreated,
		service.EventSnippetUpdated,
		service.EventSnippetUsed,
		service.EventSnippetDeleted,
	}, notifier.names())
}

func TestSnippetService_TamperedValueFailsClosed(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	svc := service.NewSnippetService(repos.Snippet, encryption.NewService(), nil)
	ctx := context.Background()

	user := testutil.NewUserBuilder().Build(t, testDB.DB)
	created, err := svc.Create(ctx, user.ID, service.SnippetInput{Keyword: "/pin", Value: "1234"})
	require.NoError(t, err)

	// Moving the row to another keyword changes the derived key.
	require.NoError(t, testDB.DB.Model(&domain.Snippet{}).
		Where("id = ?", created.ID).
		Update("keyword", "/moved").Error)

	_, err = svc.Get(ctx, user.ID, created.ID)
	assert.ErrorIs(t, err, encryption.ErrAuthenticationFailure)

	_, err = svc.List(ctx, user.ID)
	assert.ErrorIs(t, err, encryption.ErrAuthenticationFailure)
}
