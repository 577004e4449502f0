// Package telegram provides a client for the Telegram Bot API.
// It resolves chat metadata for the entity directory and delivers run
// summaries and fatal errors to an operations chat, with retry logic for
// reliability.
//
// Messages use MarkdownV2 formatting; every dynamic value is escaped.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/pulsereport/internal/models"
)

// Client handles chat lookups and notifications
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64 // ops chat, 0 disables notifications
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client. chatID may be empty when the
// client is only used for lookups.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	return NewClientWithEndpoint(botToken, chatID, tgbotapi.APIEndpoint, maxRetries, retryDelayBase)
}

// NewClientWithEndpoint creates a client against a custom Bot API endpoint
// of the form "https://host/bot%s/%s".
func NewClientWithEndpoint(botToken, chatID, endpoint string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(botToken, endpoint, &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	var chatIDInt int64
	if chatID != "" {
		chatIDInt, err = strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat ID: %w", err)
		}
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// LookupChat resolves a chat's title and type. Chats the bot cannot see
// yield ErrEntityNotFound.
func (c *Client) LookupChat(ctx context.Context, id string) (*models.ChatInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chatID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("chat ID %q must be an integer", id)
	}

	chat, err := c.bot.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: chatID}})
	if err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusBadRequest || apiErr.Code == http.StatusForbidden) {
			return nil, fmt.Errorf("chat %s: %s: %w", id, apiErr.Message, models.ErrEntityNotFound)
		}
		return nil, fmt.Errorf("failed to look up chat %s: %w", id, err)
	}

	title := chat.Title
	if title == "" {
		title = strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	}
	return &models.ChatInfo{ID: chat.ID, Title: title, Type: chat.Type, Username: chat.UserName}, nil
}

// RunSummary is what a finished run reports to the operations chat.
type RunSummary struct {
	RunID          string
	Kind           models.Kind
	Status         string
	Entities       int
	Partial        int
	Failed         int
	Reports        int
	SkippedDays    int
	FailedEntities []string
	Duration       time.Duration
}

// SendRunSummary posts a run summary to the operations chat.
func (c *Client) SendRunSummary(summary RunSummary) error {
	return c.send(formatRunSummary(summary))
}

// SendError posts a fatal run error to the operations chat.
func (c *Client) SendError(kind models.Kind, runErr error) error {
	return c.send(formatError(kind, runErr))
}

func (c *Client) send(text string) error {
	if c.chatID == 0 {
		return errors.New("no notification chat configured")
	}

	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	// Send with retry
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

func statusEmoji(status string) string {
	switch status {
	case "complete":
		return "✅"
	case "partial":
		return "⚠️"
	}
	return "❌"
}

// formatRunSummary formats a run summary into a Telegram message
func formatRunSummary(s RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *Pulse report run: %s*\n\n", statusEmoji(s.Status), escapeMarkdownV2(string(s.Kind)))
	fmt.Fprintf(&b, "🆔 Run: `%s`\n", s.RunID)
	fmt.Fprintf(&b, "📋 Status: %s\n", escapeMarkdownV2(s.Status))
	fmt.Fprintf(&b, "👥 Entities: %d \\(%d partial, %d failed\\)\n", s.Entities, s.Partial, s.Failed)
	fmt.Fprintf(&b, "📄 Reports: %d, skipped days: %d\n", s.Reports, s.SkippedDays)
	if len(s.FailedEntities) > 0 {
		names := make([]string, 0, len(s.FailedEntities))
		for _, name := range s.FailedEntities {
			names = append(names, escapeMarkdownV2(name))
		}
		fmt.Fprintf(&b, "🚫 Failed: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(&b, "⏱ Duration: %s\n", escapeMarkdownV2(formatDuration(s.Duration)))
	return b.String()
}

func formatError(kind models.Kind, err error) string {
	return fmt.Sprintf("🚨 *Pulse report run failed: %s*\n\n%s\n",
		escapeMarkdownV2(string(kind)), escapeMarkdownV2(err.Error()))
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// Characters that need escaping in MarkdownV2:
	// _ * [ ] ( ) ~ ` > # + - = | { } . ! \
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d >= time.Hour {
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
