package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// httpTimeout bounds one HTTP delivery attempt end to end.
const httpTimeout = 10 * time.Second

// Telegram sends alerts through the Bot API sendMessage call.
type Telegram struct {
	endpoint string
	chatID   string
	client   *http.Client
}

// NewTelegram builds a sender for the given bot token and chat id.
func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		endpoint: "https://api.telegram.org/bot" + token + "/sendMessage",
		chatID:   chatID,
		client:   &http.Client{Timeout: httpTimeout},
	}
}

// Name identifies the channel in logs.
func (t *Telegram) Name() string { return "telegram" }

// Send renders the title bold. Legacy Markdown mode tolerates unescaped
// symbols in the body, unlike MarkdownV2.
func (t *Telegram) Send(ctx context.Context, title, message string) error {
	err := postJSON(ctx, t.client, t.endpoint, map[string]string{
		"chat_id":    t.chatID,
		"text":       "*" + title + "*\n" + message,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

// Discord posts alerts to a webhook. A successful delivery returns 204.
type Discord struct {
	url    string
	client *http.Client
}

// NewDiscord builds a sender for the given webhook URL.
func NewDiscord(url string) *Discord {
	return &Discord{
		url:    url,
		client: &http.Client{Timeout: httpTimeout},
	}
}

// Name identifies the channel in logs.
func (d *Discord) Name() string { return "discord" }

// Send renders the title bold with Discord markdown.
func (d *Discord) Send(ctx context.Context, title, message string) error {
	err := postJSON(ctx, d.client, d.url, map[string]string{
		"content": "**" + title + "**\n" + message,
	})
	if err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}
