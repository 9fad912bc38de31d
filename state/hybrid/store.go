// Package hybrid layers a cache store (redis) over a durable one
// (sqlite). Writes go to both, reads prefer the cache and backfill it on
// a miss. Cache failures degrade to the durable store, never to an
// error.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/alvbln/alvin-bot-sub000/state"
)

type Store struct {
	durable state.Store
	cache   state.Store
}

func New(durable state.Store, cache state.Store) (*Store, error) {
	if durable == nil {
		return nil, fmt.Errorf("durable store is required")
	}
	return &Store{durable: durable, cache: cache}, nil
}

func (h *Store) SaveConversation(ctx context.Context, record state.ConversationRecord) error {
	if err := h.durable.SaveConversation(ctx, record); err != nil {
		return err
	}
	if h.cache != nil {
		if err := h.cache.SaveConversation(ctx, record); err != nil {
			log.Printf("hybrid store cache save failed: %v", err)
		}
	}
	return nil
}

func (h *Store) LoadConversation(ctx context.Context, conversationID string) (state.ConversationRecord, error) {
	if h.cache != nil {
		record, err := h.cache.LoadConversation(ctx, conversationID)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, state.ErrNotFound) {
			log.Printf("hybrid store cache load failed: %v", err)
		}
	}

	record, err := h.durable.LoadConversation(ctx, conversationID)
	if err != nil {
		return state.ConversationRecord{}, err
	}
	if h.cache != nil {
		if err := h.cache.SaveConversation(ctx, record); err != nil {
			log.Printf("hybrid store cache backfill failed: %v", err)
		}
	}
	return record, nil
}

func (h *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	if h.cache != nil {
		if err := h.cache.DeleteConversation(ctx, conversationID); err != nil {
			log.Printf("hybrid store cache delete failed: %v", err)
		}
	}
	return h.durable.DeleteConversation(ctx, conversationID)
}

func (h *Store) ListConversations(ctx context.Context, limit int) ([]state.ConversationRecord, error) {
	// The durable store is the source of truth for listings; the cache
	// only holds a recency-bounded subset.
	return h.durable.ListConversations(ctx, limit)
}

func (h *Store) Close() error {
	var firstErr error
	if h.cache != nil {
		if err := h.cache.Close(); err != nil {
			firstErr = err
		}
	}
	if err := h.durable.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

var _ state.Store = (*Store)(nil)
