package notify

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/pmuniverse/internal/platform/rest"
)

// discordLimit is the maximum message length Discord accepts.
const discordLimit = 2000

// DiscordSender posts to a Discord webhook. The rest client's base URL is
// the full webhook URL.
type DiscordSender struct {
	client *rest.Client
}

// NewDiscordSender creates a DiscordSender.
func NewDiscordSender(client *rest.Client) *DiscordSender {
	return &DiscordSender{client: client}
}

// Send posts the message with a bold title. Discord answers 204 on success
// and 429 when rate limited, which the rest client retries.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	content := clip(fmt.Sprintf("**%s**\n%s", title, message), discordLimit)
	if _, err := d.client.PostJSON(ctx, "", map[string]string{"content": content}); err != nil {
		return fmt.Errorf("discord: send: %w", err)
	}
	return nil
}

func (d *DiscordSender) Name() string { return "discord" }

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
