package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// LINEClient is a thin wrapper around the LINE Messaging API SDK.
type LINEClient struct {
	api    *messaging_api.MessagingApiAPI
	userID string
	logger *slog.Logger
}

// NewLINEClient creates a push client targeting one user.
func NewLINEClient(channelToken, userID string) *LINEClient {
	api, err := messaging_api.NewMessagingApiAPI(channelToken)
	if err != nil {
		slog.Error("Failed to create LINE client", "error", err)
		return nil
	}
	return &LINEClient{
		api:    api,
		userID: userID,
		logger: slog.Default().With("component", "line-client"),
	}
}

// Push sends a text message to the configured user.
func (c *LINEClient) Push(_ context.Context, text string) error {
	if c == nil {
		return nil
	}
	_, err := c.api.PushMessage(&messaging_api.PushMessageRequest{
		To: c.userID,
		Messages: []messaging_api.MessageInterface{
			&messaging_api.TextMessage{Text: text},
		},
	}, "")
	if err != nil {
		return fmt.Errorf("line push: %w", err)
	}
	return nil
}

// Reply answers a webhook event within its reply window.
func (c *LINEClient) Reply(replyToken, text string) error {
	if c == nil {
		return nil
	}
	_, err := c.api.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages: []messaging_api.MessageInterface{
			&messaging_api.TextMessage{Text: text},
		},
	})
	if err != nil {
		return fmt.Errorf("line reply: %w", err)
	}
	return nil
}
