// Package telegram delivers alerts through the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"

	"github.com/patagonialabs/firesentinel/internal/retry"
)

const (
	maxAttempts = 3
	retryDelay  = time.Second
)

// Sender sends alert messages to Telegram chats. Sends are rate limited
// globally to stay under the Bot API message budget.
type Sender struct {
	bot     *bot.Bot
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New builds a Sender from a bot token. messagesPerSecond bounds the
// outbound rate across all chats.
func New(token string, messagesPerSecond int, logger *slog.Logger) (*Sender, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("initializing telegram bot: %w", err)
	}
	return &Sender{
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(float64(messagesPerSecond)), messagesPerSecond),
		logger:  logger,
	}, nil
}

// Send delivers one message to the chat identified by address (a numeric
// chat ID). Transient failures are retried with a fixed delay.
func (s *Sender) Send(ctx context.Context, address, message string) error {
	chatID, err := strconv.ParseInt(address, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", address, err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit wait: %w", err)
	}

	return retry.Do(ctx, s.logger, maxAttempts, retryDelay, func() error {
		_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      message,
			ParseMode: "Markdown",
		})
		if err != nil {
			return fmt.Errorf("sending telegram message to chat %d: %w", chatID, err)
		}
		return nil
	})
}
