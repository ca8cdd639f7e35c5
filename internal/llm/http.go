package llm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/ent0n29/isoauditor/internal/policy"
)

// HTTP calls an OpenAI-compatible chat completions endpoint. Streaming replies may be
// server-sent events or newline-delimited JSON.
type HTTP struct {
	url         string
	token       string
	model       string
	temperature float64
	maxTokens   int
	strict      bool
	client      *resty.Client
}

func NewHTTP(cfg Config) *HTTP {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &HTTP{
		url:         strings.TrimSpace(cfg.HTTPURL),
		token:       strings.TrimSpace(cfg.HTTPToken),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		strict:      cfg.HTTPStreamStrict,
		client:      resty.New(),
	}
}

func (h *HTTP) Name() string { return "http" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

func (h *HTTP) Complete(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	r := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(chatRequest{
			Model: h.model,
			Messages: []chatMessage{
				{Role: "system", Content: req.SystemPrompt},
				{Role: "user", Content: req.UserMessage},
			},
			Temperature: h.temperature,
			MaxTokens:   h.maxTokens,
			Stream:      onDelta != nil,
		}).
		SetDoNotParseResponse(true)
	if h.token != "" {
		r.SetAuthToken(h.token)
	}

	res, err := r.Post(h.url)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Response{}, err
		}
		return Response{}, upstreamErr(h.Name(), 0, fmt.Errorf("send request: %w", err))
	}
	body := res.RawBody()
	defer body.Close()

	if res.StatusCode() < 200 || res.StatusCode() >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(body, 4<<10))
		// Error pages may echo request headers.
		snippet, _ := policy.Redact(strings.TrimSpace(string(raw)))
		return Response{}, upstreamErr(h.Name(), res.StatusCode(), fmt.Errorf("http status %d: %s", res.StatusCode(), snippet))
	}

	ct := strings.ToLower(res.Header().Get("Content-Type"))
	switch {
	case strings.Contains(ct, "text/event-stream"):
		return h.consumeSSE(body, onDelta)
	case strings.Contains(ct, "application/x-ndjson"):
		return h.consumeNDJSON(body, onDelta)
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		return Response{}, upstreamErr(h.Name(), res.StatusCode(), fmt.Errorf("read response: %w", err))
	}
	text := strings.TrimSpace(string(raw))
	if gjson.Valid(text) {
		text = extractText(text)
	}
	if text != "" && onDelta != nil {
		if err := onDelta(text); err != nil {
			return Response{}, err
		}
	}
	return Response{Text: text}, nil
}

func (h *HTTP) consumeSSE(body io.Reader, onDelta DeltaHandler) (Response, error) {
	return h.consumeLines(body, onDelta, func(line string) (string, bool) {
		if strings.HasPrefix(line, ":") {
			return "", false
		}
		if !strings.HasPrefix(line, "data:") {
			return "", false
		}
		return strings.TrimSpace(strings.TrimPrefix(line, "data:")), true
	})
}

func (h *HTTP) consumeNDJSON(body io.Reader, onDelta DeltaHandler) (Response, error) {
	return h.consumeLines(body, onDelta, func(line string) (string, bool) {
		return line, true
	})
}

func (h *HTTP) consumeLines(body io.Reader, onDelta DeltaHandler, payload func(string) (string, bool)) (Response, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		data, ok := payload(line)
		if !ok || data == "" {
			continue
		}
		if data == "[DONE]" {
			break
		}

		delta := data
		if gjson.Valid(data) {
			delta = extractText(data)
		} else if h.strict {
			return Response{}, upstreamErr(h.Name(), http.StatusOK, fmt.Errorf("invalid stream payload: %q", truncateForError(data)))
		}
		if delta == "" {
			continue
		}
		out.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return Response{}, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Response{}, upstreamErr(h.Name(), 0, fmt.Errorf("stream read: %w", err))
	}
	return Response{Text: out.String()}, nil
}

// extractText understands OpenAI chat shapes (full and chunked) and flat {"text"|"delta"} objects.
func extractText(payload string) string {
	for _, path := range []string{
		"choices.0.delta.content",
		"choices.0.message.content",
		"choices.0.text",
		"text",
		"delta",
		"output",
		"message",
	} {
		if r := gjson.Get(payload, path); r.Type == gjson.String {
			return r.String()
		}
	}
	return ""
}

func truncateForError(s string) string {
	if len(s) > 80 {
		return s[:80]
	}
	return s
}
