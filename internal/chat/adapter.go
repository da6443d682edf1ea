// Package chat bridges PostPilot to chat platforms (Telegram, Discord, Slack).
package chat

import (
	"context"
	"time"
)

// Adapter is the interface that platform-specific implementations must
// satisfy. Each adapter handles connection management and translates
// platform messages to and from the engine's event/reply types.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound events from the platform.
	// The channel is closed when the context is cancelled or the adapter
	// is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan InboundEvent, error)

	// Send delivers a reply to the platform.
	Send(ctx context.Context, reply Reply) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// Sender is the outbound half of Adapter. The dialogue engine depends on
// this narrower interface only.
type Sender interface {
	Send(ctx context.Context, reply Reply) error
}

// EventKind classifies an inbound event.
type EventKind string

const (
	// KindText is free-form user text (including forwarded messages).
	KindText EventKind = "text"
	// KindChoice is a button press carrying a choice id.
	KindChoice EventKind = "choice"
	// KindCommand is a bot command such as /start or /cancel.
	KindCommand EventKind = "command"
)

// Commands the engine understands.
const (
	CommandStart  = "start"
	CommandCancel = "cancel"
)

// InboundEvent represents one user action received from the chat platform.
type InboundEvent struct {
	Platform  string    // "telegram", "discord", "slack"
	ChatID    string    // platform-specific chat/user identifier
	UserID    string    // platform-specific user identifier (entitlement key)
	UserName  string    // human-readable username
	Kind      EventKind
	Text      string    // for KindText
	ChoiceID  string    // for KindChoice
	Command   string    // for KindCommand
	Forwarded string    // provenance note for forwarded text, e.g. a channel title
	Timestamp time.Time
}

// Choice is one selectable button: a human label and the id the engine
// receives when it is pressed.
type Choice struct {
	Label string
	ID    string
}

// Reply is an outbound message with optional choice buttons, laid out as
// keyboard rows, and an optional external link button.
type Reply struct {
	ChatID    string
	Text      string
	Choices   [][]Choice
	LinkLabel string
	LinkURL   string
}

// Row builds a single keyboard row.
func Row(choices ...Choice) []Choice { return choices }
