package entitlement

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// chatMemberGetter abstracts the Telegram API call we use, enabling test mocks.
type chatMemberGetter interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// TelegramChannel checks membership in a Telegram channel via getChatMember.
type TelegramChannel struct {
	api     chatMemberGetter
	channel string // "@channelname"
}

// NewTelegramChannel creates a channel-membership checker on an existing
// bot API client.
func NewTelegramChannel(api chatMemberGetter, channel string) (*TelegramChannel, error) {
	if api == nil {
		return nil, fmt.Errorf("entitlement: telegram api is required")
	}
	if channel == "" {
		return nil, fmt.Errorf("entitlement: channel is required")
	}
	return &TelegramChannel{api: api, channel: channel}, nil
}

// IsMember reports whether the user belongs to the channel. Member,
// administrator, and creator statuses all count as membership.
func (t *TelegramChannel) IsMember(ctx context.Context, userID string) (bool, error) {
	uid, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return false, fmt.Errorf("entitlement: bad telegram user id %q: %w", userID, err)
	}

	member, err := t.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			SuperGroupUsername: t.channel,
			UserID:             uid,
		},
	})
	if err != nil {
		return false, fmt.Errorf("entitlement: get chat member: %w", err)
	}

	switch member.Status {
	case "member", "administrator", "creator":
		return true, nil
	}
	return false, nil
}
