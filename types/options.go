package types

import "encoding/json"

type continuationKind int

const (
	continuationNone continuationKind = iota
	continuationSession
	continuationHistory
)

// Continuation carries prior-turn context across queries. The two variants
// cannot be conflated: agent-sdk providers resume a server-side session by
// token, chat-completions providers replay the full message history because
// every HTTP request is stateless.
type Continuation struct {
	kind      continuationKind
	sessionID string
	history   []Message
}

// ResumeSession returns a continuation that resumes a provider-managed
// session by its opaque token.
func ResumeSession(token string) Continuation {
	if token == "" {
		return Continuation{}
	}
	return Continuation{kind: continuationSession, sessionID: token}
}

// ReplayHistory returns a continuation that replays prior messages on
// every call.
func ReplayHistory(messages []Message) Continuation {
	if len(messages) == 0 {
		return Continuation{}
	}
	return Continuation{kind: continuationHistory, history: append([]Message(nil), messages...)}
}

func (c Continuation) IsZero() bool { return c.kind == continuationNone }

// SessionID returns the resume token, if this is a session continuation.
func (c Continuation) SessionID() (string, bool) {
	if c.kind != continuationSession {
		return "", false
	}
	return c.sessionID, true
}

// History returns the replayed messages, if this is a history continuation.
func (c Continuation) History() ([]Message, bool) {
	if c.kind != continuationHistory {
		return nil, false
	}
	return append([]Message(nil), c.history...), true
}

type continuationJSON struct {
	SessionID string    `json:"sessionId,omitempty"`
	History   []Message `json:"history,omitempty"`
}

// MarshalJSON flattens the variant for transport; the discriminator is
// which field is present.
func (c Continuation) MarshalJSON() ([]byte, error) {
	return json.Marshal(continuationJSON{SessionID: c.sessionID, History: c.history})
}

func (c *Continuation) UnmarshalJSON(data []byte) error {
	var wire continuationJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch {
	case wire.SessionID != "":
		*c = ResumeSession(wire.SessionID)
	case len(wire.History) > 0:
		*c = ReplayHistory(wire.History)
	default:
		*c = Continuation{}
	}
	return nil
}

// QueryOptions is the single inbound request shape for a provider query.
// Cancellation threads through the context passed to Provider.Query.
type QueryOptions struct {
	Prompt       string
	SystemPrompt string
	Continuation Continuation
	Attachments  []Attachment
	WorkingDir   string
	// Effort is a reasoning-depth hint ("low", "medium", "high"); providers
	// that have no notion of effort ignore it.
	Effort string
	// MessagesSinceCheckpoint counts caller turns since the agent last
	// persisted a summary. Past a threshold the agent-sdk provider injects
	// a soft textual reminder to checkpoint.
	MessagesSinceCheckpoint int
}
