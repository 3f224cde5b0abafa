package notify

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/pmuniverse/internal/platform/rest"
)

// TelegramAPI is the Bot API base URL.
const TelegramAPI = "https://api.telegram.org"

// TelegramBaseURL returns the bot-scoped base URL for token. The token lives
// in the base URL so request logs, which carry only the path, never show it.
func TelegramBaseURL(api, token string) string {
	return api + "/bot" + token
}

// TelegramSender delivers through the Bot API sendMessage method.
type TelegramSender struct {
	client *rest.Client
	chatID string
}

// NewTelegramSender creates a TelegramSender. client must be built on
// TelegramBaseURL.
func NewTelegramSender(client *rest.Client, chatID string) *TelegramSender {
	return &TelegramSender{client: client, chatID: chatID}
}

// Send posts the message with a bold Markdown title.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n%s", title, message),
		"parse_mode": "Markdown",
	}
	if _, err := t.client.PostJSON(ctx, "/sendMessage", payload); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

func (t *TelegramSender) Name() string { return "telegram" }
