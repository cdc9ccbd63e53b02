package integrations

// NotionSourceConfig points the lender catalogue at a Notion database.
type NotionSourceConfig struct {
	Token      string `json:"internal_integration_secret"` // Notion internal integration secret
	DatabaseID string `json:"database_id"`                 // Database holding one page per lender
}

// SlackNotifierConfig configures the counselor digest posted to Slack.
type SlackNotifierConfig struct {
	BotToken  string `json:"bot_token"` // xoxb-... token
	ChannelID string `json:"channel_id"`
}

// Represents the standard structure for testing an integration's connection.
type TestConnectionResult struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"` // Optional message, e.g., error details or success confirmation
	Details map[string]interface{} `json:"details,omitempty"` // Optional map for extra details (e.g., {"bot_name": "..."})
}
