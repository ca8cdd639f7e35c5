package session

import "time"

// CreateResponse is returned when a client asks for a fresh session id.
type CreateResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// Info describes one session derived from its turns.
type Info struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
}
