// Package slack posts counselor digests to a Slack channel.
package slack

import (
	"context"
	"errors"
	"fmt"
	"strings"

	integration_models "loancounselor-backend/internal/models/integrations"

	"github.com/slack-go/slack"
)

// DigestResponseLimit is the number of runes of the counselor's answer kept in a digest.
const DigestResponseLimit = 500

// Digest summarises one counseling turn.
type Digest struct {
	UserID      string
	StudentName string
	Destination string
	Question    string
	Response    string
}

// poster is the part of *slack.Client the notifier uses.
type poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
}

// Notifier sends digests to one channel.
type Notifier struct {
	client    poster
	channelID string
}

// NewNotifier validates cfg and creates a Slack client for it.
func NewNotifier(cfg integration_models.SlackNotifierConfig) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("slack notifier requires a bot token")
	}
	if cfg.ChannelID == "" {
		return nil, errors.New("slack notifier requires a channel id")
	}
	return &Notifier{client: slack.New(cfg.BotToken), channelID: cfg.ChannelID}, nil
}

// FormatDigest renders d as the message text.
func FormatDigest(d Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*New counseling turn* for `%s`\n", d.UserID)
	if d.StudentName != "" {
		fmt.Fprintf(&b, "*Student:* %s\n", d.StudentName)
	}
	if d.Destination != "" {
		fmt.Fprintf(&b, "*Destination:* %s\n", d.Destination)
	}
	fmt.Fprintf(&b, "*Question:* %s\n", d.Question)
	fmt.Fprintf(&b, "*Answer:* %s", truncateRunes(d.Response, DigestResponseLimit))
	return b.String()
}

// Notify posts d to the configured channel.
func (n *Notifier) Notify(ctx context.Context, d Digest) error {
	_, _, err := n.client.PostMessageContext(ctx, n.channelID, slack.MsgOptionText(FormatDigest(d), false))
	if err != nil {
		return fmt.Errorf("failed to post message to Slack channel %s: %w", n.channelID, err)
	}
	return nil
}

// TestConnection verifies the bot token with auth.test.
func (n *Notifier) TestConnection(ctx context.Context) (*integration_models.TestConnectionResult, error) {
	resp, err := n.client.AuthTestContext(ctx)
	if err != nil {
		errStr := err.Error()
		switch {
		case strings.Contains(errStr, "invalid_auth"):
			return &integration_models.TestConnectionResult{Success: false, Message: "Slack API Error: Invalid authentication token (bot_token)."}, nil
		case strings.Contains(errStr, "not_authed"):
			return &integration_models.TestConnectionResult{Success: false, Message: "Slack API Error: Not authenticated (check token scopes?)."}, nil
		}
		return nil, fmt.Errorf("failed during Slack connection test (AuthTest): %w", err)
	}
	return &integration_models.TestConnectionResult{
		Success: true,
		Message: fmt.Sprintf("Connected to Slack workspace '%s' as bot '%s'", resp.Team, resp.User),
		Details: map[string]interface{}{"bot_user_id": resp.UserID, "team_id": resp.TeamID, "channel_id": n.channelID},
	}, nil
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
