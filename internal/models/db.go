package models

import (
	"time"

	"github.com/google/uuid"
)

// Document is one embedded record held by the vector store.
type Document struct {
	ID        uuid.UUID         `db:"id"`
	Content   string            `db:"content"`
	Metadata  map[string]string `db:"metadata"`  // Stored as JSONB
	Embedding []float32         `db:"embedding"` // Stored as real[]
	CreatedAt time.Time         `db:"created_at"`
}

// ScoredDocument is a Document returned by a similarity search.
type ScoredDocument struct {
	Document
	Score float64
}
