package gateway

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alvbln/alvin-bot-sub000/state"
	"github.com/alvbln/alvin-bot-sub000/types"
)

// queryRequest is the single JSON message a client sends after
// connecting to /ws/query.
type queryRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	Prompt         string `json:"prompt"`
	SystemPrompt   string `json:"systemPrompt,omitempty"`
	WorkingDir     string `json:"workingDir,omitempty"`
	Effort         string `json:"effort,omitempty"`
}

// handleQuery streams one query over a websocket. The client sends a
// queryRequest, receives every StreamChunk as a JSON message in order,
// and the connection closes after the terminal chunk. Closing the socket
// early cancels the query.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	var req queryRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = conn.WriteJSON(types.ErrorChunk("invalid query request: " + err.Error()))
		return
	}
	if req.Prompt == "" {
		_ = conn.WriteJSON(types.ErrorChunk("prompt is required"))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// A client that goes away cancels the in-flight query.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	opts := types.QueryOptions{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		WorkingDir:   req.WorkingDir,
		Effort:       req.Effort,
	}
	record := s.loadRecord(ctx, req.ConversationID)
	opts.Continuation = record.Continuation()
	opts.MessagesSinceCheckpoint = record.MessagesSinceCheckpoint

	provider := s.cfg.Registry.GetActiveKey()
	for chunk := range s.cfg.Registry.QueryWithFallback(ctx, opts) {
		// Persist before notifying, so a client that acts on the done
		// chunk immediately sees the saved continuation. The done chunk
		// carries the serving key; the active provider may have been
		// skipped without a fallback marker.
		if chunk.Type == types.ChunkDone {
			if chunk.Done != nil && chunk.Done.Provider != "" {
				provider = chunk.Done.Provider
			}
			s.saveRecord(req.ConversationID, record, provider, chunk.Done)
		}
		if err := conn.WriteJSON(chunk); err != nil {
			cancel()
			// Drain so the producer goroutine can finish.
			continue
		}
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

func (s *Server) loadRecord(ctx context.Context, conversationID string) state.ConversationRecord {
	if s.cfg.Conversations == nil || conversationID == "" {
		return state.ConversationRecord{}
	}
	record, err := s.cfg.Conversations.LoadConversation(ctx, conversationID)
	if err != nil {
		if !errors.Is(err, state.ErrNotFound) {
			log.Printf("failed to load conversation %q: %v", conversationID, err)
		}
		return state.ConversationRecord{ConversationID: conversationID}
	}
	return record
}

func (s *Server) saveRecord(conversationID string, record state.ConversationRecord, provider string, done *types.DoneInfo) {
	if s.cfg.Conversations == nil || conversationID == "" || done == nil {
		return
	}
	record.ConversationID = conversationID
	record.Provider = provider
	record.MessagesSinceCheckpoint++
	if done.Continuation != nil {
		record.SetContinuation(*done.Continuation)
	}
	// Persist off the request context: the socket may already be closing.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.cfg.Conversations.SaveConversation(ctx, record); err != nil {
		log.Printf("failed to save conversation %q: %v", conversationID, err)
	}
}
