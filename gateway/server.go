// Package gateway exposes the routing engine over HTTP: a websocket
// endpoint that streams query chunks and a small JSON API for provider
// and conversation management.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"

	"github.com/alvbln/alvin-bot-sub000/llm"
	observestore "github.com/alvbln/alvin-bot-sub000/observe/store"
	"github.com/alvbln/alvin-bot-sub000/state"
)

type Config struct {
	Addr          string
	Registry      *llm.Registry
	Conversations state.Store
	// Traces backs the metrics endpoint; nil disables it.
	Traces observestore.Store
}

type Server struct {
	cfg      Config
	mux      *http.ServeMux
	http     *http.Server
	upgrader websocket.Upgrader
	once     sync.Once
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("gateway requires a provider registry")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:8720"
	}
	s := &Server{
		cfg: cfg,
		mux: http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	s.registerRoutes()
	s.http = &http.Server{Addr: cfg.Addr, Handler: s.mux}
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.http.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received, stopping gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			log.Printf("gateway shutdown error: %v", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() error {
	var outErr error
	s.once.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		outErr = s.http.Shutdown(shutdownCtx)
	})
	return outErr
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/v1/providers", s.handleProviders)
	s.mux.HandleFunc("/api/v1/providers/switch", s.handleSwitch)
	s.mux.HandleFunc("/api/v1/providers/reset", s.handleReset)
	s.mux.HandleFunc("/api/v1/providers/fallbacks", s.handleFallbacks)
	s.mux.HandleFunc("/api/v1/conversations", s.handleConversations)
	s.mux.HandleFunc("/api/v1/conversations/", s.handleConversationByID)
	s.mux.HandleFunc("/api/v1/metrics/summary", s.handleMetrics)
	s.mux.HandleFunc("/ws/query", s.handleQuery)
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": s.cfg.Registry.ListAll(r.Context()),
		"active":    s.cfg.Registry.GetActiveKey(),
	})
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var body struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if !s.cfg.Registry.SwitchTo(body.Key) {
		writeError(w, http.StatusNotFound, fmt.Errorf("provider %q is not registered", body.Key))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": s.cfg.Registry.GetActiveKey()})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	s.cfg.Registry.ResetToDefault()
	writeJSON(w, http.StatusOK, map[string]any{"active": s.cfg.Registry.GetActiveKey()})
}

func (s *Server) handleFallbacks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var body struct {
		Keys []string `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	s.cfg.Registry.SetFallbacks(body.Keys)
	writeJSON(w, http.StatusOK, map[string]any{"fallbacks": body.Keys})
}

type conversationView struct {
	state.ConversationRecord
	UpdatedAgo string `json:"updatedAgo,omitempty"`
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.cfg.Conversations == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("conversation store is not configured"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.cfg.Conversations.ListConversations(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	views := make([]conversationView, 0, len(records))
	for _, record := range records {
		view := conversationView{ConversationRecord: record}
		if record.UpdatedAt != nil {
			view.UpdatedAgo = humanize.Time(*record.UpdatedAt)
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": views})
}

func (s *Server) handleConversationByID(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Conversations == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("conversation store is not configured"))
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/conversations/")
	if id == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("conversation id is required"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		record, err := s.cfg.Conversations.LoadConversation(r.Context(), id)
		if errors.Is(err, state.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
	case http.MethodDelete:
		if err := s.cfg.Conversations.DeleteConversation(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	default:
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.cfg.Traces == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("trace store is not configured"))
		return
	}
	query := observestore.MetricsQuery{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid since timestamp: %w", err))
			return
		}
		query.Since = &since
	}
	summary, err := s.cfg.Traces.AggregateMetrics(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
