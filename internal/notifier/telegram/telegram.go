// Package telegram sends gated deal notifications to subscribers over
// the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/promodescuentos/dealwatcher/internal/models"
)

// Notifier delivers a rendered Message to one recipient.
type Notifier interface {
	Send(ctx context.Context, recipientID string, msg models.Message) error
	SendError(ctx context.Context, recipientID string, cycleErr error) error
	SendRecovery(ctx context.Context, recipientID string, failureCount int) error
}

// Client is a Telegram Bot API-backed Notifier. One bot serves every
// subscriber; recipientID is the subscriber's chat ID as a string.
type Client struct {
	bot            *tgbotapi.BotAPI
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a Telegram-backed Client from a bot token.
func NewClient(botToken string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// Send delivers msg to recipientID with linear-backoff retry (spec §5:
// notification failures are logged and do not fail the cycle).
func (c *Client) Send(ctx context.Context, recipientID string, msg models.Message) error {
	chatID, err := strconv.ParseInt(recipientID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid recipient ID %q: %w", recipientID, err)
	}

	out := tgbotapi.NewMessage(chatID, msg.Text)
	out.ParseMode = msg.ParseMode
	out.DisableWebPagePreview = false

	return c.sendWithRetry(ctx, out)
}

// SendError notifies recipientID of a monitoring error. Call only once
// a failure sequence has reached its third consecutive cycle.
func (c *Client) SendError(ctx context.Context, recipientID string, cycleErr error) error {
	chatID, err := strconv.ParseInt(recipientID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid recipient ID %q: %w", recipientID, err)
	}
	text := fmt.Sprintf("⚠️ *Monitoring error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	out := tgbotapi.NewMessage(chatID, text)
	out.ParseMode = "MarkdownV2"
	return c.sendWithRetry(ctx, out)
}

// SendRecovery notifies recipientID that the monitoring loop recovered
// after failureCount consecutive failures.
func (c *Client) SendRecovery(ctx context.Context, recipientID string, failureCount int) error {
	chatID, err := strconv.ParseInt(recipientID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid recipient ID %q: %w", recipientID, err)
	}
	text := fmt.Sprintf("✅ *Monitoring recovered* after %d consecutive failure\\(s\\)", failureCount)
	out := tgbotapi.NewMessage(chatID, text)
	out.ParseMode = "MarkdownV2"
	return c.sendWithRetry(ctx, out)
}

func (c *Client) sendWithRetry(ctx context.Context, msg tgbotapi.MessageConfig) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("send cancelled: %w", ctx.Err())
		default:
		}

		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("send cancelled during retry: %w", ctx.Err())
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// escapeMarkdownV2 escapes Telegram MarkdownV2 special characters.
func escapeMarkdownV2(text string) string {
	out := make([]byte, 0, len(text)+len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			out = append(out, '\\')
		}
		out = append(out, string(char)...)
	}
	return string(out)
}
