package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"loancounselor-backend/internal/crypto"
	"loancounselor-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// --- Conversation Memory Methods ---

const getHistory = `-- name: GetHistory :one
SELECT history_data FROM conversation_memory WHERE user_id = $1;
`

// GetHistory returns the stored conversation for userID, or an empty slice if none exists.
func (s *PostgresStore) GetHistory(ctx context.Context, userID string) ([]models.ChatMessage, error) {
	var data []byte
	err := s.db.QueryRow(ctx, getHistory, userID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []models.ChatMessage{}, nil
		}
		return nil, fmt.Errorf("database error fetching history for user %s: %w", userID, err)
	}
	return decodeHistory(s.sealer, userID, data)
}

const ensureHistoryRow = `-- name: EnsureHistoryRow :exec
INSERT INTO conversation_memory (user_id, history_data) VALUES ($1, $2)
ON CONFLICT (user_id) DO NOTHING;
`

const lockHistory = `-- name: LockHistory :one
SELECT history_data FROM conversation_memory WHERE user_id = $1 FOR UPDATE;
`

const updateHistory = `-- name: UpdateHistory :exec
UPDATE conversation_memory SET history_data = $2, updated_at = NOW() WHERE user_id = $1;
`

// AppendHistory appends msgs inside a transaction holding the user's row lock, so
// concurrent turns for the same user never drop each other's messages.
func (s *PostgresStore) AppendHistory(ctx context.Context, userID string, msgs ...models.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	empty, err := encodeHistory(s.sealer, userID, []models.ChatMessage{})
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	if _, err := tx.Exec(ctx, ensureHistoryRow, userID, empty); err != nil {
		logPgError("AppendHistory", err)
		return fmt.Errorf("database error creating history row: %w", err)
	}

	var data []byte
	if err := tx.QueryRow(ctx, lockHistory, userID).Scan(&data); err != nil {
		return fmt.Errorf("database error locking history row: %w", err)
	}
	history, err := decodeHistory(s.sealer, userID, data)
	if err != nil {
		return err
	}

	updated, err := encodeHistory(s.sealer, userID, append(history, msgs...))
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, updateHistory, userID, updated); err != nil {
		logPgError("AppendHistory", err)
		return fmt.Errorf("database error updating history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit history update: %w", err)
	}
	log.Debug().Str("user_id", userID).Int("appended", len(msgs)).Msg("[PostgresStore] AppendHistory")
	return nil
}

const deleteHistory = `-- name: DeleteHistory :exec
DELETE FROM conversation_memory WHERE user_id = $1;
`

func (s *PostgresStore) ResetHistory(ctx context.Context, userID string) error {
	if _, err := s.db.Exec(ctx, deleteHistory, userID); err != nil {
		logPgError("ResetHistory", err)
		return fmt.Errorf("database error resetting history for user %s: %w", userID, err)
	}
	return nil
}

// encodeHistory serialises history as JSON, sealing it when encryption is configured.
// The user ID is bound as associated data so a blob cannot be moved between users.
func encodeHistory(sealer *crypto.Sealer, userID string, history []models.ChatMessage) ([]byte, error) {
	data, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history: %w", err)
	}
	if !sealer.Enabled() {
		return data, nil
	}
	sealed, err := sealer.Seal(data, []byte(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt history: %w", err)
	}
	return sealed, nil
}

func decodeHistory(sealer *crypto.Sealer, userID string, data []byte) ([]models.ChatMessage, error) {
	if sealer.Enabled() {
		opened, err := sealer.Open(data, []byte(userID))
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt history for user %s: %w", userID, err)
		}
		data = opened
	}
	history := []models.ChatMessage{}
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to parse history for user %s: %w", userID, err)
	}
	return history, nil
}
