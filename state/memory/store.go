// Package memory is the in-process conversation store used when no
// external backend is configured. State lives for the life of the
// process.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/alvbln/alvin-bot-sub000/state"
)

var errConversationID = errors.New("conversation id is required")

type Store struct {
	mu      sync.RWMutex
	records map[string]state.ConversationRecord
}

func New() *Store {
	return &Store{records: make(map[string]state.ConversationRecord)}
}

func (s *Store) SaveConversation(ctx context.Context, record state.ConversationRecord) error {
	if record.ConversationID == "" {
		return errConversationID
	}
	if record.UpdatedAt == nil {
		now := time.Now().UTC()
		record.UpdatedAt = &now
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ConversationID] = record
	return nil
}

func (s *Store) LoadConversation(ctx context.Context, conversationID string) (state.ConversationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[conversationID]
	if !ok {
		return state.ConversationRecord{}, state.ErrNotFound
	}
	return record, nil
}

func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, conversationID)
	return nil
}

func (s *Store) ListConversations(ctx context.Context, limit int) ([]state.ConversationRecord, error) {
	s.mu.RLock()
	out := make([]state.ConversationRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ti, tj := timeOf(out[i]), timeOf(out[j])
		if ti.Equal(tj) {
			return out[i].ConversationID < out[j].ConversationID
		}
		return ti.After(tj)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Close() error { return nil }

func timeOf(r state.ConversationRecord) time.Time {
	if r.UpdatedAt == nil {
		return time.Time{}
	}
	return *r.UpdatedAt
}

var _ state.Store = (*Store)(nil)
