// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/rewired-gh/spreadwatch/internal/models"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	status         func() string
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
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

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

// SetStatusFunc installs the reply for the /status command.
// Call it before ListenForCommands.
func (c *Client) SetStatusFunc(fn func() string) {
	c.status = fn
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		c.bot.Send(reply) //nolint:errcheck
	case "status":
		text := "No status available"
		if c.status != nil {
			text = c.status()
		}
		reply := tgbotapi.NewMessage(msg.Chat.ID, text)
		c.bot.Send(reply) //nolint:errcheck
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a monitoring error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Capture error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Capture recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// Send sends a notification for one committed batch of spread changes.
func (c *Client) Send(events []models.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	return c.sendMarkdownV2(formatMessage(events))
}

// maxEventsPerMessage keeps a message well under Telegram's 4096 character limit.
const maxEventsPerMessage = 40

// formatMessage formats change events into a Telegram MarkdownV2 message.
func formatMessage(events []models.ChangeEvent) string {
	var b strings.Builder
	b.WriteString("📊 *Spread changes*\n")
	b.WriteString(fmt.Sprintf("📅 %s\n\n", escapeMarkdownV2(events[0].Timestamp.Format("2006-01-02 15:04:05"))))

	for i, e := range events {
		if i == maxEventsPerMessage {
			b.WriteString(escapeMarkdownV2(fmt.Sprintf("...and %d more", len(events)-i)))
			b.WriteString("\n")
			break
		}

		name := "*" + escapeMarkdownV2(e.SpreadKey) + "*"
		if e.DaysBetween != nil {
			name += escapeMarkdownV2(fmt.Sprintf(" (%dd)", *e.DaysBetween))
		}

		if e.Kind == models.KindNew {
			b.WriteString(fmt.Sprintf("%d\\. 🆕 %s %s", i+1, name, escapeMarkdownV2(formatPrice(e.New.Mid))))
		} else {
			delta := e.New.Mid.Decimal.Sub(e.Old.Mid.Decimal)
			emoji := "📈"
			if delta.IsNegative() {
				emoji = "📉"
			}
			sign := ""
			if delta.IsPositive() {
				sign = "+"
			}
			b.WriteString(fmt.Sprintf("%d\\. %s %s %s → %s \\(%s\\)", i+1, emoji, name,
				escapeMarkdownV2(formatPrice(e.Old.Mid)),
				escapeMarkdownV2(formatPrice(e.New.Mid)),
				escapeMarkdownV2(sign+delta.String())))
		}
		if e.Dependency != "" {
			b.WriteString(" ← " + escapeMarkdownV2(e.Dependency))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func formatPrice(d decimal.NullDecimal) string {
	if !d.Valid {
		return "n/a"
	}
	return d.Decimal.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
