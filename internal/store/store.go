package store

import (
	"context"
	"errors"

	"loancounselor-backend/internal/models"
)

// ErrNotFound is returned when a specific record is not found.
var ErrNotFound = errors.New("record not found")

// Collection names used by the vector store.
const (
	CollectionLenders         = "lenders"
	CollectionConversations   = "conversations"
	CollectionRecommendations = "recommendations"
)

// Store defines the interface for persistence operations.
// This allows for swapping the memory, PostgreSQL and Firestore backends and for fakes in tests.
type Store interface {
	// Vector document operations
	UpsertDocuments(ctx context.Context, collection string, docs []models.Document) error
	// SearchDocuments returns at most limit documents whose metadata contains every
	// key/value of filter, ordered by descending cosine similarity to embedding.
	SearchDocuments(ctx context.Context, collection string, embedding []float32, limit int, filter map[string]string) ([]models.ScoredDocument, error)
	DeleteDocuments(ctx context.Context, collection string, filter map[string]string) (int, error)

	// Conversation memory operations
	GetHistory(ctx context.Context, userID string) ([]models.ChatMessage, error)
	AppendHistory(ctx context.Context, userID string, msgs ...models.ChatMessage) error
	ResetHistory(ctx context.Context, userID string) error

	Close() error
}
