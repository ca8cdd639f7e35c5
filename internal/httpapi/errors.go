package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ent0n29/isoauditor/internal/conversation"
	"github.com/ent0n29/isoauditor/internal/llm"
)

type failure struct {
	status    int
	code      string
	message   string
	retryable bool
}

// classify never leaks storage or provider details to the caller.
func classify(err error) failure {
	switch {
	case errors.Is(err, conversation.ErrValidation):
		return failure{http.StatusBadRequest, "invalid_request", validationMessage(err), false}
	case errors.Is(err, conversation.ErrNotFound):
		return failure{http.StatusNotFound, "session_not_found", "Conversation history not found", false}
	case errors.Is(err, llm.ErrUpstreamTimeout):
		return failure{http.StatusGatewayTimeout, "upstream_timeout", "The auditor took too long to answer. Please try again.", true}
	case errors.Is(err, llm.ErrUpstream):
		retryable := false
		var ue *llm.UpstreamError
		if errors.As(err, &ue) {
			retryable = ue.Retryable
		}
		return failure{http.StatusBadGateway, "upstream_error", "The auditor could not answer right now.", retryable}
	case errors.Is(err, conversation.ErrStorage):
		return failure{http.StatusInternalServerError, "storage_error", "Conversation storage is unavailable.", true}
	case errors.Is(err, context.Canceled):
		return failure{http.StatusRequestTimeout, "canceled", "Request canceled.", false}
	default:
		return failure{http.StatusInternalServerError, "internal_error", "Internal server error.", false}
	}
}

func validationMessage(err error) string {
	msg := err.Error()
	prefix := conversation.ErrValidation.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return msg
}
