// Package channels defines the interface and message types for BookClaw
// messaging transports. The transport (WhatsApp) implements the Channel
// interface to receive and send messages in a unified way, keeping the
// orchestration core free of any platform-specific types.
package channels

import (
	"context"
	"errors"
	"time"
)

// ErrChannelDisconnected is returned by Send when the transport has no
// active connection.
var ErrChannelDisconnected = errors.New("channel is disconnected")

// Channel defines the interface a messaging transport must implement.
type Channel interface {
	// Name returns the channel identifier (e.g. "whatsapp").
	Name() string

	// Connect establishes the connection to the messaging platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Send sends a message to the specified recipient.
	Send(ctx context.Context, to string, message *OutgoingMessage) error

	// Receive returns a Go channel that emits incoming messages.
	Receive() <-chan *IncomingMessage

	// IsConnected returns true if the channel is connected.
	IsConnected() bool
}

// LifecycleObserver receives transport lifecycle notifications. The
// assistant uses these to arm the auto-send scheduler on ready and tear
// its recurring jobs down on disconnect.
type LifecycleObserver interface {
	// OnReady is called once the transport is connected and authenticated.
	OnReady()

	// OnDisconnected is called when the connection is lost.
	OnDisconnected(reason string)
}

// IncomingMessage represents a message received from the transport.
type IncomingMessage struct {
	// ID is the unique message identifier in the source channel.
	ID string

	// From is the sender identifier (full JID for WhatsApp).
	From string

	// FromName is the sender display name, if available.
	FromName string

	// ChatID is the group or DM identifier the message arrived in.
	ChatID string

	// IsGroup indicates whether the message came from a group chat.
	IsGroup bool

	// IsFromMe indicates the message was sent by the bot's own account.
	IsFromMe bool

	// IsBroadcast indicates a status/broadcast message.
	IsBroadcast bool

	// Content is the text content of the message.
	Content string

	// Timestamp is when the message was sent.
	Timestamp time.Time

	// ReplyTo is the ID of the message being replied to, if any.
	ReplyTo string

	// QuotedSender is the sender of the quoted message, if replying.
	QuotedSender string

	// MentionedJIDs lists the JIDs mentioned in the message.
	MentionedJIDs []string
}

// OutgoingMessage represents a message to be sent through a channel.
type OutgoingMessage struct {
	// Content is the text content of the message.
	Content string

	// ReplyTo is the ID of the message being replied to (optional).
	ReplyTo string
}
