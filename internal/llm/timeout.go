package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type timeoutCompleter struct {
	inner   Completer
	timeout time.Duration
}

// WithTimeout bounds every call of c. Deadline expiry becomes ErrUpstreamTimeout and any
// other provider failure, including an empty completion, becomes an UpstreamError.
func WithTimeout(c Completer, d time.Duration) Completer {
	if d <= 0 {
		d = DefaultTimeout
	}
	return &timeoutCompleter{inner: c, timeout: d}
}

func (t *timeoutCompleter) Name() string { return t.inner.Name() }

func (t *timeoutCompleter) Complete(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := t.inner.Complete(callCtx, req, onDelta)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return Response{}, fmt.Errorf("%w: %s gave no completion within %s", ErrUpstreamTimeout, t.inner.Name(), t.timeout)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, ctxErr
		}
		if errors.Is(err, ErrUpstream) {
			return Response{}, err
		}
		return Response{}, upstreamErr(t.inner.Name(), 0, err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return Response{}, upstreamErr(t.inner.Name(), 0, errors.New("empty completion"))
	}
	return resp, nil
}
