package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brojonat/buywatch/service/metrics"
	"github.com/brojonat/buywatch/service/registry"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = `I post an alert whenever someone buys a token on the watch list.

/add <mint> - start watching a token
/remove <mint> - stop watching a token
/list - show watched tokens
/help - show this message`

// CursorForgetter drops the stored watermark for a token.
type CursorForgetter interface {
	Forget(ctx context.Context, token string)
}

// Commands answers bot commands. Mutating commands are limited to chats
// for which allowed returns true.
type Commands struct {
	bot      Bot
	registry *registry.Registry
	cursors  CursorForgetter
	allowed  func(chatID int64) bool
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewCommands(bot Bot, reg *registry.Registry, cursors CursorForgetter, allowed func(int64) bool, m *metrics.Metrics, logger *slog.Logger) *Commands {
	return &Commands{
		bot:      bot,
		registry: reg,
		cursors:  cursors,
		allowed:  allowed,
		metrics:  m,
		logger:   logger,
	}
}

// Run consumes updates until ctx is cancelled.
func (c *Commands) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := c.bot.GetUpdatesChan(cfg)
	defer c.bot.StopReceivingUpdates()

	c.logger.InfoContext(ctx, "listening for bot commands")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			reply := c.Handle(ctx, update.Message)
			if reply == "" {
				continue
			}
			msg := tgbotapi.NewMessage(update.Message.Chat.ID, reply)
			msg.DisableWebPagePreview = true
			if _, err := c.bot.Send(msg); err != nil {
				c.logger.ErrorContext(ctx, "failed to send command reply",
					"chat_id", update.Message.Chat.ID,
					"error", err,
				)
			}
		}
	}
}

// Handle executes one command and returns the reply text. Unknown commands
// get no reply.
func (c *Commands) Handle(ctx context.Context, msg *tgbotapi.Message) string {
	var chatID int64
	if msg.Chat != nil {
		chatID = msg.Chat.ID
	}
	command := msg.Command()
	arg := strings.TrimSpace(msg.CommandArguments())

	logger := c.logger.With("command", command, "chat_id", chatID)

	switch command {
	case "start", "help":
		return helpText
	case "list":
		return c.list()
	case "add", "remove":
		if !c.allowed(chatID) {
			logger.WarnContext(ctx, "rejected command from unauthorized chat")
			return "⛔ This chat is not allowed to change the watch list."
		}
		if arg == "" {
			return fmt.Sprintf("Usage: /%s <token mint address>", command)
		}
		if command == "add" {
			return c.add(ctx, logger, arg)
		}
		return c.remove(ctx, logger, arg)
	default:
		return ""
	}
}

func (c *Commands) add(ctx context.Context, logger *slog.Logger, mint string) string {
	err := c.registry.Add(ctx, mint)
	switch {
	case err == nil:
		logger.InfoContext(ctx, "token added", "token", mint)
		c.metrics.SetTrackedTokens(c.registry.Len())
		return "✅ Token added: " + mint
	case errors.Is(err, registry.ErrAlreadyTracked):
		return "⚠️ Token already being tracked."
	case errors.Is(err, registry.ErrInvalidAddress):
		return "❌ Not a valid Solana token address: " + mint
	default:
		logger.ErrorContext(ctx, "failed to add token", "token", mint, "error", err)
		return "Failed to add token, please try again."
	}
}

func (c *Commands) remove(ctx context.Context, logger *slog.Logger, mint string) string {
	err := c.registry.Remove(ctx, mint)
	switch {
	case err == nil:
		if c.cursors != nil {
			c.cursors.Forget(ctx, mint)
		}
		logger.InfoContext(ctx, "token removed", "token", mint)
		c.metrics.SetTrackedTokens(c.registry.Len())
		return "❌ Token removed: " + mint
	case errors.Is(err, registry.ErrNotTracked):
		return "⚠️ Token is not being tracked."
	default:
		logger.ErrorContext(ctx, "failed to remove token", "token", mint, "error", err)
		return "Failed to remove token, please try again."
	}
}

func (c *Commands) list() string {
	tokens := c.registry.List()
	if len(tokens) == 0 {
		return "No tokens are currently being tracked."
	}
	return "Currently tracking:\n" + strings.Join(tokens, "\n")
}
