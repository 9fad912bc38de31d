// Package sqlite is the durable conversation store: a single-file
// database that survives restarts without any external service.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alvbln/alvin-bot-sub000/state"
)

//go:embed schema.sql
var schemaSQL string

const (
	defaultBusyTimeout = 5 * time.Second
	defaultLimit       = 50
)

type Store struct {
	db          *sql.DB
	busyTimeout time.Duration
	enableWAL   bool
	maxOpenConn int
}

type Option func(*Store)

func WithBusyTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout >= 0 {
			s.busyTimeout = timeout
		}
	}
}

func WithWAL(enabled bool) Option {
	return func(s *Store) {
		s.enableWAL = enabled
	}
}

func WithMaxOpenConns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxOpenConn = n
		}
	}
}

func New(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	s := &Store{
		busyTimeout: defaultBusyTimeout,
		enableWAL:   true,
		maxOpenConn: 1,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(s.maxOpenConn)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s.db = db
	if err := s.initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if s.busyTimeout > 0 {
		ms := int(s.busyTimeout / time.Millisecond)
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", ms)); err != nil {
			return fmt.Errorf("failed to set busy_timeout: %w", err)
		}
	}
	if s.enableWAL {
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable wal: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *Store) SaveConversation(ctx context.Context, record state.ConversationRecord) error {
	if record.ConversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	if record.UpdatedAt == nil {
		now := time.Now().UTC()
		record.UpdatedAt = &now
	}

	var history sql.NullString
	if len(record.History) > 0 {
		raw, err := json.Marshal(record.History)
		if err != nil {
			return fmt.Errorf("failed to marshal history: %w", err)
		}
		history = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations
			(conversation_id, provider, session_id, history, messages_since_checkpoint, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			provider = excluded.provider,
			session_id = excluded.session_id,
			history = excluded.history,
			messages_since_checkpoint = excluded.messages_since_checkpoint,
			updated_at = excluded.updated_at
	`, record.ConversationID, record.Provider, record.SessionID, history,
		record.MessagesSinceCheckpoint, record.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

func (s *Store) LoadConversation(ctx context.Context, conversationID string) (state.ConversationRecord, error) {
	if conversationID == "" {
		return state.ConversationRecord{}, fmt.Errorf("conversation id is required")
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, provider, session_id, history, messages_since_checkpoint, updated_at
		FROM conversations WHERE conversation_id = ?
	`, conversationID)
	record, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return state.ConversationRecord{}, state.ErrNotFound
	}
	return record, err
}

func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM conversations WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

func (s *Store) ListConversations(ctx context.Context, limit int) ([]state.ConversationRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, provider, session_id, history, messages_since_checkpoint, updated_at
		FROM conversations ORDER BY updated_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []state.ConversationRecord
	for rows.Next() {
		record, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (state.ConversationRecord, error) {
	var (
		record    state.ConversationRecord
		history   sql.NullString
		updatedAt string
	)
	err := row.Scan(&record.ConversationID, &record.Provider, &record.SessionID,
		&history, &record.MessagesSinceCheckpoint, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return state.ConversationRecord{}, err
		}
		return state.ConversationRecord{}, fmt.Errorf("failed to scan conversation: %w", err)
	}
	if history.Valid && history.String != "" {
		if err := json.Unmarshal([]byte(history.String), &record.History); err != nil {
			return state.ConversationRecord{}, fmt.Errorf("failed to decode history: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		record.UpdatedAt = &t
	}
	return record, nil
}

var _ state.Store = (*Store)(nil)
