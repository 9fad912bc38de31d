package state

import (
	"time"

	"github.com/alvbln/alvin-bot-sub000/types"
)

// ConversationRecord is the resumable state of one conversation. Exactly
// one of SessionID and History is set, mirroring the two continuation
// variants: a provider-managed session token or a replayable transcript.
type ConversationRecord struct {
	ConversationID string          `json:"conversationId"`
	Provider       string          `json:"provider"`
	SessionID      string          `json:"sessionId,omitempty"`
	History        []types.Message `json:"history,omitempty"`

	MessagesSinceCheckpoint int        `json:"messagesSinceCheckpoint,omitempty"`
	UpdatedAt               *time.Time `json:"updatedAt,omitempty"`
}

// Continuation rebuilds the typed continuation from the stored fields.
func (r ConversationRecord) Continuation() types.Continuation {
	if r.SessionID != "" {
		return types.ResumeSession(r.SessionID)
	}
	if len(r.History) > 0 {
		return types.ReplayHistory(r.History)
	}
	return types.Continuation{}
}

// SetContinuation stores c into the record, clearing whichever variant
// it is not.
func (r *ConversationRecord) SetContinuation(c types.Continuation) {
	r.SessionID = ""
	r.History = nil
	if sessionID, ok := c.SessionID(); ok {
		r.SessionID = sessionID
		return
	}
	if history, ok := c.History(); ok {
		r.History = history
	}
}
