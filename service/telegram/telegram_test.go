package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/buywatch/service/registry"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	wif       = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"
	adminChat = int64(-1001)
	otherChat = int64(42)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBot records outgoing messages and fails the first len(errs) sends.
type fakeBot struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	errs    []error
	updates chan tgbotapi.Update
	stopped bool
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.errs) > 0 {
		err := b.errs[0]
		b.errs = b.errs[1:]
		return tgbotapi.Message{}, err
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, msg)
	}
	return tgbotapi.Message{MessageID: len(b.sent)}, nil
}

func (b *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return b.updates
}

func (b *fakeBot) StopReceivingUpdates() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
}

func (b *fakeBot) messages() []tgbotapi.MessageConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), b.sent...)
}

func newFastSender(bot Bot, tries uint) *Sender {
	s := NewSender(bot, adminChat, tries, discardLogger())
	s.initialInterval = time.Millisecond
	return s
}

func TestSender_MarkdownWithoutPreview(t *testing.T) {
	bot := &fakeBot{}
	require.NoError(t, newFastSender(bot, 3).Send(context.Background(), "*Buy Detected!*"))

	msgs := bot.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, adminChat, msgs[0].ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdown, msgs[0].ParseMode)
	assert.True(t, msgs[0].DisableWebPagePreview)
}

func TestSender_RetriesTransientErrors(t *testing.T) {
	bot := &fakeBot{errs: []error{errors.New("connection reset"), errors.New("timeout")}}
	require.NoError(t, newFastSender(bot, 3).Send(context.Background(), "hi"))
	assert.Len(t, bot.messages(), 1)
}

func TestSender_GivesUpAfterMaxTries(t *testing.T) {
	bot := &fakeBot{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	err := newFastSender(bot, 2).Send(context.Background(), "hi")
	assert.Error(t, err)
	assert.Empty(t, bot.messages())
}

func TestSender_ClientErrorIsPermanent(t *testing.T) {
	bot := &fakeBot{errs: []error{
		&tgbotapi.Error{Code: 400, Message: "Bad Request: can't parse entities"},
		errors.New("should not be reached"),
	}}
	err := newFastSender(bot, 3).Send(context.Background(), "*broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can't parse entities")
}

func commandMessage(chatID int64, text string) *tgbotapi.Message {
	cmdLen := len(text)
	for i, r := range text {
		if r == ' ' {
			cmdLen = i
			break
		}
	}
	return &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}
}

type recordingForgetter struct{ forgotten []string }

func (f *recordingForgetter) Forget(_ context.Context, token string) {
	f.forgotten = append(f.forgotten, token)
}

func newTestCommands(bot Bot) (*Commands, *registry.Registry, *recordingForgetter) {
	reg := registry.New(nil, discardLogger())
	forget := &recordingForgetter{}
	allowed := func(id int64) bool { return id == adminChat }
	return NewCommands(bot, reg, forget, allowed, nil, discardLogger()), reg, forget
}

func TestCommands_AddListRemove(t *testing.T) {
	ctx := context.Background()
	c, reg, forget := newTestCommands(&fakeBot{})

	assert.Equal(t, "No tokens are currently being tracked.", c.Handle(ctx, commandMessage(adminChat, "/list")))

	assert.Equal(t, "✅ Token added: "+wif, c.Handle(ctx, commandMessage(adminChat, "/add "+wif)))
	assert.Equal(t, "⚠️ Token already being tracked.", c.Handle(ctx, commandMessage(adminChat, "/add "+wif)))
	assert.Equal(t, "Currently tracking:\n"+wif, c.Handle(ctx, commandMessage(otherChat, "/list")))

	assert.Equal(t, "❌ Token removed: "+wif, c.Handle(ctx, commandMessage(adminChat, "/remove "+wif)))
	assert.Equal(t, "⚠️ Token is not being tracked.", c.Handle(ctx, commandMessage(adminChat, "/remove "+wif)))

	assert.Empty(t, reg.List())
	assert.Equal(t, []string{wif}, forget.forgotten)
}

func TestCommands_RejectsMalformedAddress(t *testing.T) {
	c, reg, _ := newTestCommands(&fakeBot{})

	reply := c.Handle(context.Background(), commandMessage(adminChat, "/add hello-world"))
	assert.Contains(t, reply, "Not a valid Solana token address")
	assert.Empty(t, reg.List())

	reply = c.Handle(context.Background(), commandMessage(adminChat, "/add"))
	assert.Equal(t, "Usage: /add <token mint address>", reply)
}

func TestCommands_UnauthorizedChatCannotMutate(t *testing.T) {
	c, reg, _ := newTestCommands(&fakeBot{})

	reply := c.Handle(context.Background(), commandMessage(otherChat, "/add "+wif))
	assert.Contains(t, reply, "not allowed")
	assert.Empty(t, reg.List())
}

func TestCommands_HelpAndUnknown(t *testing.T) {
	c, _, _ := newTestCommands(&fakeBot{})

	assert.Equal(t, helpText, c.Handle(context.Background(), commandMessage(otherChat, "/start")))
	assert.Equal(t, helpText, c.Handle(context.Background(), commandMessage(otherChat, "/help")))
	assert.Empty(t, c.Handle(context.Background(), commandMessage(otherChat, "/moon")))
}

func TestCommands_RunRepliesUntilCancelled(t *testing.T) {
	bot := &fakeBot{updates: make(chan tgbotapi.Update, 2)}
	c, _, _ := newTestCommands(bot)

	bot.updates <- tgbotapi.Update{Message: commandMessage(adminChat, "/add "+wif)}
	bot.updates <- tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: adminChat}, Text: "gm"}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(bot.messages()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, "✅ Token added: "+wif, bot.messages()[0].Text)
	assert.True(t, bot.stopped)
}
