package models

// Roles used in conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage represents a single message in a student's conversation history.
type ChatMessage struct {
	Role      string `json:"role"`      // "user" or "assistant"
	Content   string `json:"content"`   // The message text
	Timestamp int64  `json:"timestamp"` // Unix timestamp (seconds since epoch)
}
