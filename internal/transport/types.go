// Package transport defines the platform-neutral messaging surface between
// the bot core and a chat platform adapter.
package transport

import (
	"context"
	"errors"
)

// ErrPermanent marks delivery failures that will never succeed for this
// destination (bot blocked, chat deleted). Adapters wrap such errors so the
// dispatcher can classify without knowing platform detail.
var ErrPermanent = errors.New("permanent delivery failure")

type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	ChatType     string // "private", "group", "supergroup", ...
	ChatTitle    string
}

// IsGroup reports whether the message came from a multi-user chat.
func (m *Message) IsGroup() bool {
	return m.ChatType == "group" || m.ChatType == "supergroup"
}

type ChatTarget struct {
	ChatID int64
}

type Adapter interface {
	// Start begins consuming platform updates and forwards them to out.
	// It returns once the poll loop is running.
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string) error
}
