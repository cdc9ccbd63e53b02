package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"loancounselor-backend/internal/models"
	"loancounselor-backend/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id := uuid.New()
	require.NoError(t, s.UpsertDocuments(ctx, store.CollectionLenders, []models.Document{
		{ID: id, Content: "Axis", Embedding: []float32{1, 0}, Metadata: map[string]string{"name": "Axis"}},
		{Content: "HDFC", Embedding: []float32{0, 1}, Metadata: map[string]string{"name": "HDFC"}},
	}))

	got, err := s.SearchDocuments(ctx, store.CollectionLenders, []float32{1, 0.1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.False(t, got[0].CreatedAt.IsZero())

	// Same ID replaces the document.
	require.NoError(t, s.UpsertDocuments(ctx, store.CollectionLenders, []models.Document{
		{ID: id, Content: "Axis v2", Embedding: []float32{1, 0}},
	}))
	got, err = s.SearchDocuments(ctx, store.CollectionLenders, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "Axis v2", got[0].Content)

	got, err = s.SearchDocuments(ctx, "unknown", []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchFilterAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.UpsertDocuments(ctx, store.CollectionConversations, []models.Document{
		{Content: "u1 turn", Embedding: []float32{1}, Metadata: map[string]string{"user_id": "u1"}},
		{Content: "u2 turn", Embedding: []float32{1}, Metadata: map[string]string{"user_id": "u2"}},
	}))

	got, err := s.SearchDocuments(ctx, store.CollectionConversations, []float32{1}, 10, map[string]string{"user_id": "u2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u2 turn", got[0].Content)

	n, err := s.DeleteDocuments(ctx, store.CollectionConversations, map[string]string{"user_id": "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = s.SearchDocuments(ctx, store.CollectionConversations, []float32{1}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestReturnedDocumentsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.UpsertDocuments(ctx, "c", []models.Document{
		{Embedding: []float32{1}, Metadata: map[string]string{"k": "v"}},
	}))

	got, err := s.SearchDocuments(ctx, "c", []float32{1}, 1, nil)
	require.NoError(t, err)
	got[0].Metadata["k"] = "changed"
	got[0].Embedding[0] = 9

	again, err := s.SearchDocuments(ctx, "c", []float32{1}, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "v", again[0].Metadata["k"])
	assert.Equal(t, float32(1), again[0].Embedding[0])
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	h, err := s.GetHistory(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, h)

	require.NoError(t, s.AppendHistory(ctx, "u1",
		models.ChatMessage{Role: models.RoleUser, Content: "hi"},
		models.ChatMessage{Role: models.RoleAssistant, Content: "hello"},
	))
	h, err = s.GetHistory(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, "hello", h[1].Content)

	require.NoError(t, s.ResetHistory(ctx, "u1"))
	h, err = s.GetHistory(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.AppendHistory(ctx, "u1", models.ChatMessage{Role: models.RoleUser, Content: fmt.Sprint(i)})
			_, _ = s.SearchDocuments(ctx, "c", []float32{1}, 1, nil)
		}(i)
	}
	wg.Wait()

	h, err := s.GetHistory(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, h, 50)
}

func TestFilterOnMissingKeyMatchesNothing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.UpsertDocuments(ctx, store.CollectionConversations, []models.Document{
		{Content: "anonymous", Embedding: []float32{1}},
	}))

	got, err := s.SearchDocuments(ctx, store.CollectionConversations, []float32{1}, 10, map[string]string{"user_id": ""})
	require.NoError(t, err)
	assert.Empty(t, got)

	n, err := s.DeleteDocuments(ctx, store.CollectionConversations, map[string]string{"user_id": ""})
	require.NoError(t, err)
	assert.Zero(t, n)
}
