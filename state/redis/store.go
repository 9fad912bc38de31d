// Package redis stores conversation state in Redis with a TTL, so idle
// conversations age out instead of accumulating forever.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/alvbln/alvin-bot-sub000/state"
)

const (
	defaultTTL    = 72 * time.Hour
	defaultLimit  = 50
	defaultPrefix = "alvinbot"
)

type Store struct {
	client   *goredis.Client
	ttl      time.Duration
	prefix   string
	addr     string
	db       int
	password string
}

type Option func(*Store)

func WithPassword(password string) Option {
	return func(s *Store) { s.password = password }
}

func WithDB(db int) Option {
	return func(s *Store) { s.db = db }
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = strings.TrimSpace(prefix)
		}
	}
}

func WithClient(client *goredis.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

func New(addr string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	s := &Store{
		ttl:    defaultTTL,
		prefix: defaultPrefix,
		addr:   addr,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = goredis.NewClient(&goredis.Options{
			Addr:     s.addr,
			Password: s.password,
			DB:       s.db,
		})
	}

	if err := s.client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return s, nil
}

func (s *Store) SaveConversation(ctx context.Context, record state.ConversationRecord) error {
	if record.ConversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	if record.UpdatedAt == nil {
		now := time.Now().UTC()
		record.UpdatedAt = &now
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	key := s.conversationKey(record.ConversationID)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, string(raw), s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), goredis.Z{
		Score:  float64(record.UpdatedAt.Unix()),
		Member: record.ConversationID,
	})
	pipe.Expire(ctx, s.indexKey(), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save conversation in redis: %w", err)
	}
	return nil
}

func (s *Store) LoadConversation(ctx context.Context, conversationID string) (state.ConversationRecord, error) {
	if conversationID == "" {
		return state.ConversationRecord{}, fmt.Errorf("conversation id is required")
	}

	raw, err := s.client.Get(ctx, s.conversationKey(conversationID)).Result()
	if err != nil {
		if err == goredis.Nil {
			return state.ConversationRecord{}, state.ErrNotFound
		}
		return state.ConversationRecord{}, fmt.Errorf("failed to load conversation from redis: %w", err)
	}

	var record state.ConversationRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return state.ConversationRecord{}, fmt.Errorf("failed to decode conversation from redis: %w", err)
	}
	return record, nil
}

func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.conversationKey(conversationID))
	pipe.ZRem(ctx, s.indexKey(), conversationID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete conversation from redis: %w", err)
	}
	return nil
}

func (s *Store) ListConversations(ctx context.Context, limit int) ([]state.ConversationRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation ids: %w", err)
	}

	out := make([]state.ConversationRecord, 0, len(ids))
	for _, id := range ids {
		record, err := s.LoadConversation(ctx, id)
		if err != nil {
			if err == state.ErrNotFound {
				// Record expired after the index entry; skip it.
				continue
			}
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) conversationKey(id string) string {
	return fmt.Sprintf("%s:conv:%s", s.prefix, id)
}

func (s *Store) indexKey() string {
	return fmt.Sprintf("%s:conv:index", s.prefix)
}

var _ state.Store = (*Store)(nil)
