package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI calls the chat completions API.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func NewOpenAI(cfg Config) *OpenAI {
	conf := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if base := strings.TrimSpace(cfg.OpenAIBaseURL); base != "" {
		conf.BaseURL = base
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(conf),
		model:       model,
		temperature: wireTemperature(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}
}

// wireTemperature keeps an explicit zero on the wire. The request field is omitempty,
// and an omitted temperature means the API default of 1.
func wireTemperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Complete(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserMessage},
		},
	}

	if onDelta == nil {
		resp, err := o.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return Response{}, o.wrap(err)
		}
		if len(resp.Choices) == 0 {
			return Response{}, upstreamErr(o.Name(), 0, errors.New("no choices returned"))
		}
		return Response{Text: resp.Choices[0].Message.Content}, nil
	}

	chatReq.Stream = true
	stream, err := o.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return Response{}, o.wrap(err)
	}
	defer stream.Close()

	var out strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Response{}, o.wrap(err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		out.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return Response{}, err
		}
	}
	return Response{Text: out.String()}, nil
}

func (o *OpenAI) wrap(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return upstreamErr(o.Name(), apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return upstreamErr(o.Name(), reqErr.HTTPStatusCode, err)
	}
	return upstreamErr(o.Name(), 0, fmt.Errorf("chat completion: %w", err))
}
