// Package memory keeps each student's running conversation with the counselor.
package memory

import (
	"context"
	"strings"
	"time"

	"loancounselor-backend/internal/models"
	"loancounselor-backend/internal/store"
)

// ConversationMemory reads and writes per-user history through a store.Store.
type ConversationMemory struct {
	store store.Store
	now   func() time.Time
}

func New(s store.Store) *ConversationMemory {
	return &ConversationMemory{store: s, now: time.Now}
}

// History returns the user's messages, oldest first.
func (m *ConversationMemory) History(ctx context.Context, userID string) ([]models.ChatMessage, error) {
	return m.store.GetHistory(ctx, userID)
}

// SaveTurn appends the student's message and the counselor's answer.
func (m *ConversationMemory) SaveTurn(ctx context.Context, userID, message, response string) error {
	ts := m.now().Unix()
	return m.store.AppendHistory(ctx, userID,
		models.ChatMessage{Role: models.RoleUser, Content: message, Timestamp: ts},
		models.ChatMessage{Role: models.RoleAssistant, Content: response, Timestamp: ts},
	)
}

func (m *ConversationMemory) Clear(ctx context.Context, userID string) error {
	return m.store.ResetHistory(ctx, userID)
}

// Summary renders history as "<role>: <content>" lines.
func Summary(history []models.ChatMessage) string {
	lines := make([]string, len(history))
	for i, msg := range history {
		lines[i] = msg.Role + ": " + msg.Content
	}
	return strings.Join(lines, "\n")
}
