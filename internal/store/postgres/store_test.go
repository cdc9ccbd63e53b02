package postgres

import (
	"bytes"
	"context"
	"os"
	"testing"

	"loancounselor-backend/internal/crypto"
	"loancounselor-backend/internal/models"
	"loancounselor-backend/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSealer(t *testing.T) *crypto.Sealer {
	t.Helper()
	s, err := crypto.NewSealer(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return s
}

func TestHistoryEncodingPlaintext(t *testing.T) {
	history := []models.ChatMessage{{Role: models.RoleUser, Content: "hi", Timestamp: 1}}

	data, err := encodeHistory(nil, "u1", history)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"content":"hi"`)

	got, err := decodeHistory(nil, "u1", data)
	require.NoError(t, err)
	assert.Equal(t, history, got)
}

func TestHistoryEncodingSealed(t *testing.T) {
	sealer := testSealer(t)
	history := []models.ChatMessage{{Role: models.RoleAssistant, Content: "secret plan"}}

	data, err := encodeHistory(sealer, "u1", history)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret plan")

	got, err := decodeHistory(sealer, "u1", data)
	require.NoError(t, err)
	assert.Equal(t, history, got)

	// A blob sealed for one user cannot be opened as another's.
	_, err = decodeHistory(sealer, "u2", data)
	assert.Error(t, err)
}

func TestDecodeEmptyHistory(t *testing.T) {
	got, err := decodeHistory(nil, "u1", []byte("[]"))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

// TestPostgresStoreIntegration runs against a real database when TEST_DATABASE_URL is set.
func TestPostgresStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)
	s := NewPostgresStore(pool, testSealer(t))
	defer s.Close()
	require.NoError(t, s.Migrate(ctx))

	collection := "test_" + uuid.NewString()
	user := "user-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = s.DeleteDocuments(ctx, collection, nil)
		_ = s.ResetHistory(ctx, user)
	})

	require.NoError(t, s.UpsertDocuments(ctx, collection, []models.Document{
		{Content: "near", Embedding: []float32{1, 0}, Metadata: map[string]string{"user_id": user}},
		{Content: "far", Embedding: []float32{0, 1}, Metadata: map[string]string{"user_id": user}},
		{Content: "other", Embedding: []float32{1, 0}, Metadata: map[string]string{"user_id": "someone-else"}},
	}))

	got, err := s.SearchDocuments(ctx, collection, []float32{1, 0}, 5, map[string]string{"user_id": user})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].Content)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
	assert.InDelta(t, 0.0, got[1].Score, 1e-6)
	assert.Equal(t, []float32{1, 0}, got[0].Embedding)

	got, err = s.SearchDocuments(ctx, collection, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, got, 1, "the limit is applied by the database")

	n, err := s.DeleteDocuments(ctx, collection, map[string]string{"user_id": user})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.AppendHistory(ctx, user, models.ChatMessage{Role: models.RoleUser, Content: "a"}))
	require.NoError(t, s.AppendHistory(ctx, user, models.ChatMessage{Role: models.RoleAssistant, Content: "b"}))
	h, err := s.GetHistory(ctx, user)
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, "b", h[1].Content)

	require.NoError(t, s.ResetHistory(ctx, user))
	h, err = s.GetHistory(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, h)

	var _ store.Store = s
}
