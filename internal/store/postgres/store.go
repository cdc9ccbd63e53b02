package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"loancounselor-backend/internal/crypto"
	"loancounselor-backend/internal/models"
	"loancounselor-backend/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/rs/zerolog/log"
)

// Compile-time check to ensure PostgresStore implements store.Store
var _ store.Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db     *pgxpool.Pool
	sealer *crypto.Sealer // nil keeps history in plaintext JSON
}

func NewPostgresStore(db *pgxpool.Pool, sealer *crypto.Sealer) *PostgresStore {
	return &PostgresStore{db: db, sealer: sealer}
}

// Connect opens a pool whose connections know the pgvector types. The extension is
// created first on a single connection, since type registration needs it to exist.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	_, err = conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	conn.Close(ctx)
	if err != nil {
		logPgError("Connect", err)
		return nil, fmt.Errorf("unable to enable the vector extension: %w", err)
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create database connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return pool, nil
}

// Embeddings are stored without a fixed dimension so the embedding model can be swapped;
// rows of another dimension simply cannot be compared.
const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS vector_documents (
    id          UUID PRIMARY KEY,
    collection  TEXT        NOT NULL,
    content     TEXT        NOT NULL,
    metadata    JSONB       NOT NULL DEFAULT '{}'::jsonb,
    embedding   vector      NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS vector_documents_collection_idx ON vector_documents (collection);
CREATE INDEX IF NOT EXISTS vector_documents_metadata_idx ON vector_documents USING GIN (metadata);

CREATE TABLE IF NOT EXISTS conversation_memory (
    user_id      TEXT PRIMARY KEY,
    history_data BYTEA       NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate creates the tables used by the store if they do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		logPgError("Migrate", err)
		return fmt.Errorf("database error applying schema: %w", err)
	}
	log.Info().Msg("[PostgresStore] Schema is up to date")
	return nil
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// --- Vector Document Methods ---

const upsertDocument = `-- name: UpsertDocument :exec
INSERT INTO vector_documents (id, collection, content, metadata, embedding, created_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
ON CONFLICT (id) DO UPDATE
SET collection = EXCLUDED.collection,
    content    = EXCLUDED.content,
    metadata   = EXCLUDED.metadata,
    embedding  = EXCLUDED.embedding;
`

// UpsertDocuments writes docs in one batch, replacing rows with the same ID.
func (s *PostgresStore) UpsertDocuments(ctx context.Context, collection string, docs []models.Document) error {
	if len(docs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, d := range docs {
		id := d.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		metadata, err := marshalMetadata(d.Metadata)
		if err != nil {
			return err
		}
		var createdAt any
		if !d.CreatedAt.IsZero() {
			createdAt = d.CreatedAt
		}
		batch.Queue(upsertDocument, id, collection, d.Content, metadata, pgvector.NewVector(d.Embedding), createdAt)
	}

	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		logPgError("UpsertDocuments", err)
		return fmt.Errorf("database error upserting %d documents into %s: %w", len(docs), collection, err)
	}

	log.Debug().Str("collection", collection).Int("count", len(docs)).Msg("[PostgresStore] UpsertDocuments")
	return nil
}

const searchDocuments = `-- name: SearchDocuments :many
SELECT id, content, metadata, embedding, created_at, 1 - (embedding <=> $3) AS score
FROM vector_documents
WHERE collection = $1 AND metadata @> $2::jsonb
ORDER BY embedding <=> $3, created_at, id
LIMIT $4;
`

// SearchDocuments asks pgvector for the limit nearest documents by cosine distance.
func (s *PostgresStore) SearchDocuments(ctx context.Context, collection string, embedding []float32, limit int, filter map[string]string) ([]models.ScoredDocument, error) {
	if limit <= 0 {
		return nil, nil
	}
	filterJSON, err := marshalMetadata(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, searchDocuments, collection, filterJSON, pgvector.NewVector(embedding), limit)
	if err != nil {
		logPgError("SearchDocuments", err)
		return nil, fmt.Errorf("error querying documents: %w", err)
	}
	defer rows.Close()

	var out []models.ScoredDocument
	for rows.Next() {
		var (
			d        models.ScoredDocument
			metadata []byte
			vec      pgvector.Vector
		)
		if err := rows.Scan(&d.ID, &d.Content, &metadata, &vec, &d.CreatedAt, &d.Score); err != nil {
			return nil, fmt.Errorf("error scanning document row: %w", err)
		}
		if err := json.Unmarshal(metadata, &d.Metadata); err != nil {
			return nil, fmt.Errorf("failed to parse metadata of document %s: %w", d.ID, err)
		}
		d.Embedding = vec.Slice()
		out = append(out, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows: %w", err)
	}
	return out, nil
}

const deleteDocuments = `-- name: DeleteDocuments :execrows
DELETE FROM vector_documents
WHERE collection = $1 AND metadata @> $2::jsonb;
`

func (s *PostgresStore) DeleteDocuments(ctx context.Context, collection string, filter map[string]string) (int, error) {
	filterJSON, err := marshalMetadata(filter)
	if err != nil {
		return 0, err
	}
	tag, err := s.db.Exec(ctx, deleteDocuments, collection, filterJSON)
	if err != nil {
		logPgError("DeleteDocuments", err)
		return 0, fmt.Errorf("database error deleting documents from %s: %w", collection, err)
	}
	return int(tag.RowsAffected()), nil
}

func marshalMetadata(md map[string]string) ([]byte, error) {
	if md == nil {
		md = map[string]string{}
	}
	b, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return b, nil
}

func logPgError(op string, err error) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		log.Error().Str("code", pgErr.Code).Str("detail", pgErr.Detail).Msgf("[PostgresStore] %s: PostgreSQL error: %s", op, pgErr.Message)
		return
	}
	log.Error().Err(err).Msgf("[PostgresStore] %s failed", op)
}
