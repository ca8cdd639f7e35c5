package llm

import (
	"context"
	"fmt"
	"strings"
)

// Mock answers deterministically without any network call.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Complete(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}

	text := buildMockReply(req)
	if onDelta != nil {
		for _, word := range strings.SplitAfter(text, " ") {
			if err := onDelta(word); err != nil {
				return Response{}, err
			}
		}
	}
	return Response{Text: text}, nil
}

func buildMockReply(req Request) string {
	q := strings.TrimSpace(req.UserMessage)
	if q == "" {
		q = "(empty question)"
	}
	return fmt.Sprintf("Offline auditor reply. You asked: %s", q)
}
