// Package state persists per-conversation routing state: which provider a
// conversation is pinned to and the continuation needed to pick it up
// again. Backends are interchangeable; the memory store is the default.
package state

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("state: not found")

type Store interface {
	SaveConversation(ctx context.Context, record ConversationRecord) error
	LoadConversation(ctx context.Context, conversationID string) (ConversationRecord, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	ListConversations(ctx context.Context, limit int) ([]ConversationRecord, error)

	Close() error
}
