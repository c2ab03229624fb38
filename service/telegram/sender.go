// Package telegram delivers buy alerts to a chat and serves the operator
// commands that edit the watch list.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot is the subset of *tgbotapi.BotAPI the package uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// NewBot authenticates with the Bot API.
func NewBot(token string, httpClient *http.Client) (*tgbotapi.BotAPI, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	return bot, nil
}

// Sender posts Markdown messages to one chat.
type Sender struct {
	bot             Bot
	chatID          int64
	maxTries        uint
	initialInterval time.Duration
	logger          *slog.Logger
}

// NewSender creates a sender bound to chatID. maxTries below 1 means one attempt.
func NewSender(bot Bot, chatID int64, maxTries uint, logger *slog.Logger) *Sender {
	if maxTries < 1 {
		maxTries = 1
	}
	return &Sender{
		bot:             bot,
		chatID:          chatID,
		maxTries:        maxTries,
		initialInterval: time.Second,
		logger:          logger,
	}
}

// Send delivers text. Rate limits honour the server's retry_after; other
// client errors (bad Markdown, unknown chat) are not retried.
func (s *Sender) Send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	operation := func() (tgbotapi.Message, error) {
		sent, err := s.bot.Send(msg)
		if err == nil {
			return sent, nil
		}

		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.Code == http.StatusTooManyRequests && apiErr.RetryAfter > 0:
				return sent, backoff.RetryAfter(apiErr.RetryAfter)
			case apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests:
				return sent, backoff.Permanent(err)
			}
		}
		return sent, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.initialInterval

	notify := func(err error, next time.Duration) {
		s.logger.WarnContext(ctx, "failed to send telegram message, retrying",
			"chat_id", s.chatID,
			"error", err,
			"backoff", next,
		)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(s.maxTries),
		backoff.WithNotify(notify),
	)
	if err != nil {
		return fmt.Errorf("send to chat %d: %w", s.chatID, err)
	}
	return nil
}
