package conversation

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Pair is one replayed exchange.
type Pair struct {
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is one role-tagged side of a pair.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Window is the most recent part of a session, oldest pair first.
type Window struct {
	SessionID string `json:"session_id"`
	Pairs     []Pair `json:"pairs"`
}

func (w Window) Len() int { return len(w.Pairs) }

// Messages expands pairs into alternating user and assistant messages.
func (w Window) Messages() []Message {
	return expand(w.Pairs)
}

// Tail returns the last n messages of the window.
func (w Window) Tail(n int) []Message {
	msgs := w.Messages()
	if n >= 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs
}

func expand(pairs []Pair) []Message {
	out := make([]Message, 0, 2*len(pairs))
	for _, p := range pairs {
		out = append(out,
			Message{Role: RoleUser, Content: p.Query, Timestamp: p.Timestamp},
			Message{Role: RoleAssistant, Content: p.Response, Timestamp: p.Timestamp},
		)
	}
	return out
}
