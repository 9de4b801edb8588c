// Package session maintains bounded per-chat conversational context:
// an ordered turn sequence plus a rolling summary produced by
// compaction. Stores create sessions lazily and delete them only on an
// explicit reset.
package session

import "context"

// Segment is one text piece within a turn. Tool activity is not
// persisted; only the user's question and the final synthesized answer
// make it into history.
type Segment struct {
	Type string `json:"type"` // "text"
	Text string `json:"text,omitempty"`
}

// TextSegment builds a plain text segment.
func TextSegment(s string) Segment {
	return Segment{Type: "text", Text: s}
}

// Turn is one conversational exchange entry.
type Turn struct {
	Role     string    `json:"role"` // "user" or "assistant"
	Segments []Segment `json:"segments"`
}

// UserTurn builds a single-text user turn.
func UserTurn(text string) Turn {
	return Turn{Role: "user", Segments: []Segment{TextSegment(text)}}
}

// AssistantTurn builds a single-text assistant turn.
func AssistantTurn(text string) Turn {
	return Turn{Role: "assistant", Segments: []Segment{TextSegment(text)}}
}

// Session is the stored state for one chat.
type Session struct {
	Summary string `json:"summary,omitempty"`
	Turns   []Turn `json:"turns"`
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	out := &Session{Summary: s.Summary, Turns: make([]Turn, len(s.Turns))}
	for i, t := range s.Turns {
		segs := make([]Segment, len(t.Segments))
		copy(segs, t.Segments)
		out.Turns[i] = Turn{Role: t.Role, Segments: segs}
	}
	return out
}

// LastUserText returns the text of the most recent user turn, or "".
func (s *Session) LastUserText() string {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		t := s.Turns[i]
		if t.Role != "user" {
			continue
		}
		for _, seg := range t.Segments {
			if seg.Type == "text" && seg.Text != "" {
				return seg.Text
			}
		}
	}
	return ""
}

// Store persists sessions keyed by an opaque session key.
type Store interface {
	// Get returns the session for key, creating an empty one if absent.
	Get(ctx context.Context, key string) (*Session, error)

	// Save replaces the stored session for key.
	Save(ctx context.Context, key string, s *Session) error

	// Clear deletes the session for key. Clearing an absent key is not
	// an error.
	Clear(ctx context.Context, key string) error
}
