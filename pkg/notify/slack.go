package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// SlackClient is a thin wrapper around the slack-go SDK, used as an
// optional mirror channel for notifications.
type SlackClient struct {
	api       *goslack.Client
	channelID string
	logger    *slog.Logger
}

// NewSlackClient creates a Slack API client for one channel.
func NewSlackClient(token, channelID string) *SlackClient {
	return &SlackClient{
		api:       goslack.New(token),
		channelID: channelID,
		logger:    slog.Default().With("component", "slack-client"),
	}
}

// Post sends a plain text message to the configured channel.
func (c *SlackClient) Post(ctx context.Context, text string) error {
	if c == nil {
		return nil
	}
	_, _, err := c.api.PostMessageContext(ctx, c.channelID,
		goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	return nil
}
