// Package session holds the transient per-browser assistant state: the
// current chat session id and the turns sent as context with every prompt.
// State is loaded and saved by the HTTP layer and passed explicitly to the
// assistant; nothing here is global.
package session

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL bounds how long an idle browser session is kept.
const DefaultTTL = 14 * 24 * time.Hour

// ErrNotFound is returned by Store.Load for unknown or expired ids.
var ErrNotFound = errors.New("session not found")

// Turn is one remembered message.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// State is the transient assistant context of one browser session.
type State struct {
	ChatSessionID string `json:"chat_session_id,omitempty"`
	History       []Turn `json:"chat_history,omitempty"`
}

// Empty reports whether the state carries nothing worth storing.
func (s State) Empty() bool { return s.ChatSessionID == "" && len(s.History) == 0 }

// Clone returns a deep copy, so callers can extend History safely.
func (s State) Clone() State {
	out := State{ChatSessionID: s.ChatSessionID}
	if len(s.History) > 0 {
		out.History = append([]Turn(nil), s.History...)
	}
	return out
}

// AppendExchange adds a user/assistant pair and keeps at most maxPairs
// pairs (maxPairs <= 0 keeps everything). The oldest pairs are dropped.
func (s State) AppendExchange(prompt, answer string, maxPairs int) State {
	out := s.Clone()
	out.History = append(out.History,
		Turn{Role: "user", Content: prompt},
		Turn{Role: "assistant", Content: answer},
	)
	if maxPairs > 0 && len(out.History) > 2*maxPairs {
		out.History = append([]Turn(nil), out.History[len(out.History)-2*maxPairs:]...)
	}
	return out
}

// Store persists State by opaque browser-session id.
type Store interface {
	Load(ctx context.Context, id string) (State, error)
	Save(ctx context.Context, id string, st State) error
	Delete(ctx context.Context, id string) error
}
