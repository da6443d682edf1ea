// Package telegram implements the chat Adapter for Telegram Bot API long
// polling. Choices become inline keyboard buttons; button presses arrive
// as callback queries.
package telegram

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/avbuyanov/postpilot/internal/chat"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	// pollTimeoutSec is the long-poll timeout passed to getUpdates.
	pollTimeoutSec = 30
	// inboundBuffer is the capacity of the inbound event channel.
	inboundBuffer = 100
)

// botAPI abstracts the tgbotapi methods we use, enabling test mocks.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// Adapter implements chat.Adapter for Telegram.
type Adapter struct {
	api      botAPI
	botToken string

	mu        sync.Mutex
	connected bool
	closed    bool
	inbound   chan chat.InboundEvent
	cancel    context.CancelFunc
}

// AdapterOpts holds parameters for creating a Telegram Adapter.
type AdapterOpts struct {
	BotToken string
	// For testing: inject a mock API instead of the real Telegram client.
	API botAPI
}

// New creates a Telegram Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.API == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	return &Adapter{
		api:      opts.API,
		botToken: opts.BotToken,
		inbound:  make(chan chat.InboundEvent, inboundBuffer),
	}, nil
}

// Connect authenticates against the Telegram Bot API.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("telegram: adapter already closed")
	}
	if a.connected {
		return nil
	}
	if a.api == nil {
		bot, err := tgbotapi.NewBotAPI(a.botToken)
		if err != nil {
			return fmt.Errorf("telegram: authorize: %w", err)
		}
		log.Printf("telegram: connected as @%s", bot.Self.UserName)
		a.api = bot
	}
	a.connected = true
	return nil
}

// API exposes the underlying client for collaborators that need more of
// the Telegram surface (the entitlement checker). Only valid after Connect.
func (a *Adapter) API() interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.api
}

// Listen starts the long-poll update pump. Must be called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan chat.InboundEvent, error) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return nil, fmt.Errorf("telegram: not connected")
	}
	listenCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeoutSec
	updates := a.api.GetUpdatesChan(u)

	go a.pumpUpdates(listenCtx, updates)

	return a.inbound, nil
}

// pumpUpdates converts Telegram updates to inbound events until the
// context is cancelled or the update channel closes.
func (a *Adapter) pumpUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if ev, ok := a.convertUpdate(update); ok {
				select {
				case a.inbound <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// convertUpdate maps one Telegram update to an inbound event. Unsupported
// update types (edits, channel posts) are dropped.
func (a *Adapter) convertUpdate(update tgbotapi.Update) (chat.InboundEvent, bool) {
	if cq := update.CallbackQuery; cq != nil {
		// Acknowledge the button press so the client stops the spinner.
		if _, err := a.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			log.Printf("telegram: answer callback: %v", err)
		}
		if cq.Message == nil {
			return chat.InboundEvent{}, false
		}
		return chat.InboundEvent{
			Platform:  "telegram",
			ChatID:    strconv.FormatInt(cq.Message.Chat.ID, 10),
			UserID:    strconv.FormatInt(cq.From.ID, 10),
			UserName:  cq.From.UserName,
			Kind:      chat.KindChoice,
			ChoiceID:  cq.Data,
			Timestamp: time.Now(),
		}, true
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		return chat.InboundEvent{}, false
	}

	ev := chat.InboundEvent{
		Platform:  "telegram",
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		UserID:    strconv.FormatInt(msg.From.ID, 10),
		UserName:  msg.From.UserName,
		Timestamp: msg.Time(),
	}

	if msg.IsCommand() {
		ev.Kind = chat.KindCommand
		ev.Command = msg.Command()
		return ev, true
	}

	if msg.Text == "" {
		return chat.InboundEvent{}, false
	}
	ev.Kind = chat.KindText
	ev.Text = msg.Text
	ev.Forwarded = forwardOrigin(msg)
	return ev, true
}

// forwardOrigin describes where a forwarded message came from, or "".
func forwardOrigin(msg *tgbotapi.Message) string {
	if msg.ForwardFromChat != nil {
		if msg.ForwardFromChat.UserName != "" {
			return "@" + msg.ForwardFromChat.UserName
		}
		return msg.ForwardFromChat.Title
	}
	if msg.ForwardFrom != nil {
		return msg.ForwardFrom.UserName
	}
	return ""
}

// Send delivers a reply. Choices and the optional link become one inline
// keyboard.
func (a *Adapter) Send(ctx context.Context, reply chat.Reply) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return fmt.Errorf("telegram: not connected")
	}
	a.mu.Unlock()

	chatID, err := strconv.ParseInt(reply.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat id %q: %w", reply.ChatID, err)
	}

	msg := tgbotapi.NewMessage(chatID, reply.Text)
	if markup, ok := buildKeyboard(reply); ok {
		msg.ReplyMarkup = markup
	}
	if _, err := a.api.Send(msg); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

// buildKeyboard translates reply choices (and the optional link button)
// into an inline keyboard markup.
func buildKeyboard(reply chat.Reply) (tgbotapi.InlineKeyboardMarkup, bool) {
	var rows [][]tgbotapi.InlineKeyboardButton
	if reply.LinkURL != "" {
		label := reply.LinkLabel
		if label == "" {
			label = reply.LinkURL
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(label, reply.LinkURL),
		))
	}
	for _, row := range reply.Choices {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, c := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(c.Label, c.ID))
		}
		if len(buttons) > 0 {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
		}
	}
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

// Close gracefully shuts down the adapter.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	if a.cancel != nil {
		a.cancel()
	}
	if a.api != nil {
		a.api.StopReceivingUpdates()
	}
	close(a.inbound)
	return nil
}
