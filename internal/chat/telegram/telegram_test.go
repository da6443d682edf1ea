package telegram

import (
	"context"
	"testing"
	"time"

	"github.com/avbuyanov/postpilot/internal/chat"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// mockBotAPI records sent messages and serves a scripted update stream.
type mockBotAPI struct {
	updates  chan tgbotapi.Update
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	stopped  bool
}

func newMockBotAPI() *mockBotAPI {
	return &mockBotAPI{updates: make(chan tgbotapi.Update, 10)}
}

func (m *mockBotAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updates
}

func (m *mockBotAPI) StopReceivingUpdates() { m.stopped = true }

func (m *mockBotAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.sent = append(m.sent, c)
	return tgbotapi.Message{}, nil
}

func (m *mockBotAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.requests = append(m.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockBotAPI) GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	return tgbotapi.ChatMember{Status: "member"}, nil
}

func connectedAdapter(t *testing.T, api *mockBotAPI) *Adapter {
	t.Helper()
	a, err := New(AdapterOpts{API: api})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return a
}

func TestNewRequiresTokenOrAPI(t *testing.T) {
	if _, err := New(AdapterOpts{}); err == nil {
		t.Error("expected error without token or api")
	}
}

func TestListenConvertsTextMessage(t *testing.T) {
	api := newMockBotAPI()
	a := connectedAdapter(t, api)
	defer a.Close()

	inbound, err := a.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	api.updates <- tgbotapi.Update{
		Message: &tgbotapi.Message{
			Chat: &tgbotapi.Chat{ID: 100},
			From: &tgbotapi.User{ID: 200, UserName: "anna"},
			Text: "привет",
			Date: int(time.Now().Unix()),
		},
	}

	ev := receiveEvent(t, inbound)
	if ev.Kind != chat.KindText || ev.Text != "привет" {
		t.Errorf("event = %+v", ev)
	}
	if ev.ChatID != "100" || ev.UserID != "200" || ev.UserName != "anna" {
		t.Errorf("identity = %q/%q/%q", ev.ChatID, ev.UserID, ev.UserName)
	}
	if ev.Platform != "telegram" {
		t.Errorf("platform = %q", ev.Platform)
	}
}

func TestListenConvertsCommand(t *testing.T) {
	api := newMockBotAPI()
	a := connectedAdapter(t, api)
	defer a.Close()

	inbound, err := a.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	api.updates <- tgbotapi.Update{
		Message: &tgbotapi.Message{
			Chat:     &tgbotapi.Chat{ID: 100},
			From:     &tgbotapi.User{ID: 200},
			Text:     "/start",
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
		},
	}

	ev := receiveEvent(t, inbound)
	if ev.Kind != chat.KindCommand || ev.Command != "start" {
		t.Errorf("event = %+v", ev)
	}
}

func TestListenConvertsCallbackAndAcks(t *testing.T) {
	api := newMockBotAPI()
	a := connectedAdapter(t, api)
	defer a.Close()

	inbound, err := a.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	api.updates <- tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb1",
			Data:    "content_plan",
			From:    &tgbotapi.User{ID: 200, UserName: "anna"},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
		},
	}

	ev := receiveEvent(t, inbound)
	if ev.Kind != chat.KindChoice || ev.ChoiceID != "content_plan" {
		t.Errorf("event = %+v", ev)
	}
	if len(api.requests) != 1 {
		t.Errorf("callback acks = %d, want 1", len(api.requests))
	}
}

func TestListenCapturesForwardOrigin(t *testing.T) {
	api := newMockBotAPI()
	a := connectedAdapter(t, api)
	defer a.Close()

	inbound, err := a.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	api.updates <- tgbotapi.Update{
		Message: &tgbotapi.Message{
			Chat:            &tgbotapi.Chat{ID: 100},
			From:            &tgbotapi.User{ID: 200},
			Text:            "пример поста",
			ForwardFromChat: &tgbotapi.Chat{UserName: "other_channel"},
		},
	}

	ev := receiveEvent(t, inbound)
	if ev.Forwarded != "@other_channel" {
		t.Errorf("forwarded = %q, want @other_channel", ev.Forwarded)
	}
}

func TestSendBuildsKeyboard(t *testing.T) {
	api := newMockBotAPI()
	a := connectedAdapter(t, api)
	defer a.Close()

	err := a.Send(context.Background(), chat.Reply{
		ChatID:    "100",
		Text:      "Выберите:",
		LinkLabel: "Подписаться",
		LinkURL:   "https://t.me/channel",
		Choices: [][]chat.Choice{
			chat.Row(chat.Choice{Label: "План", ID: "content_plan"}),
		},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(api.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(api.sent))
	}
	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("sent type = %T", api.sent[0])
	}
	if msg.ChatID != 100 || msg.Text != "Выберите:" {
		t.Errorf("msg = %+v", msg)
	}
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("reply markup type = %T", msg.ReplyMarkup)
	}
	if len(markup.InlineKeyboard) != 2 {
		t.Fatalf("keyboard rows = %d, want 2 (link + choices)", len(markup.InlineKeyboard))
	}
	link := markup.InlineKeyboard[0][0]
	if link.URL == nil || *link.URL != "https://t.me/channel" {
		t.Errorf("link button = %+v", link)
	}
	choice := markup.InlineKeyboard[1][0]
	if choice.CallbackData == nil || *choice.CallbackData != "content_plan" {
		t.Errorf("choice button = %+v", choice)
	}
}

func TestSendRejectsBadChatID(t *testing.T) {
	api := newMockBotAPI()
	a := connectedAdapter(t, api)
	defer a.Close()

	if err := a.Send(context.Background(), chat.Reply{ChatID: "not-a-number"}); err == nil {
		t.Error("expected error for non-numeric chat id")
	}
}

func TestCloseStopsUpdates(t *testing.T) {
	api := newMockBotAPI()
	a := connectedAdapter(t, api)
	if _, err := a.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !api.stopped {
		t.Error("StopReceivingUpdates not called")
	}
	// Close is idempotent.
	if err := a.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func receiveEvent(t *testing.T, ch <-chan chat.InboundEvent) chat.InboundEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return chat.InboundEvent{}
	}
}
