package conversation

import "errors"

var (
	// ErrNotFound means the session has no turns for this user.
	ErrNotFound = errors.New("session has no conversation history")
	// ErrStorage wraps any failure of the turn log.
	ErrStorage    = errors.New("conversation storage failure")
	ErrValidation = errors.New("invalid conversation request")
)
