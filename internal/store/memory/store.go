// Package memory is an in-process store.Store, used for local development and tests.
// Nothing survives a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"loancounselor-backend/internal/models"
	"loancounselor-backend/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Compile-time check to ensure MemoryStore implements store.Store
var _ store.Store = (*MemoryStore)(nil)

type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[uuid.UUID]models.Document
	histories   map[string][]models.ChatMessage
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[uuid.UUID]models.Document),
		histories:   make(map[string][]models.ChatMessage),
		now:         time.Now,
	}
}

// UpsertDocuments inserts docs, replacing any document with the same ID.
func (s *MemoryStore) UpsertDocuments(_ context.Context, collection string, docs []models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[uuid.UUID]models.Document)
		s.collections[collection] = coll
	}
	for _, d := range docs {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = s.now()
		}
		coll[d.ID] = cloneDocument(d)
	}
	log.Debug().Str("collection", collection).Int("count", len(docs)).Msg("[MemoryStore] UpsertDocuments")
	return nil
}

func (s *MemoryStore) SearchDocuments(_ context.Context, collection string, embedding []float32, limit int, filter map[string]string) ([]models.ScoredDocument, error) {
	s.mu.RLock()
	candidates := make([]models.Document, 0, len(s.collections[collection]))
	for _, d := range s.collections[collection] {
		if matchesFilter(d.Metadata, filter) {
			candidates = append(candidates, cloneDocument(d))
		}
	}
	s.mu.RUnlock()

	return rankDocuments(candidates, embedding, limit), nil
}

func (s *MemoryStore) DeleteDocuments(_ context.Context, collection string, filter map[string]string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, d := range s.collections[collection] {
		if matchesFilter(d.Metadata, filter) {
			delete(s.collections[collection], id)
			deleted++
		}
	}
	return deleted, nil
}

// GetHistory returns a copy of the user's history; unknown users have an empty history.
func (s *MemoryStore) GetHistory(_ context.Context, userID string) ([]models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.histories[userID]
	out := make([]models.ChatMessage, len(h))
	copy(out, h)
	return out, nil
}

func (s *MemoryStore) AppendHistory(_ context.Context, userID string, msgs ...models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.histories[userID] = append(s.histories[userID], msgs...)
	return nil
}

func (s *MemoryStore) ResetHistory(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.histories, userID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneDocument(d models.Document) models.Document {
	if d.Embedding != nil {
		d.Embedding = append([]float32(nil), d.Embedding...)
	}
	if d.Metadata != nil {
		md := make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			md[k] = v
		}
		d.Metadata = md
	}
	return d
}
