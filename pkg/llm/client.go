// Package llm defines the completion client used by the planner and the
// quick responder, with an OpenAI-backed implementation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// CompletionRequest is one chat completion call.
type CompletionRequest struct {
	Model       string
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// CompletionResult carries the reply text plus the API-reported token
// counts the cost guard records. Token counts fall back to a rough
// estimate when the API omits usage.
type CompletionResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Client is the completion interface workers depend on.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
	Close() error
}

// OpenAIClient implements Client over the OpenAI chat completions API.
type OpenAIClient struct {
	llm     *openai.LLM
	timeout time.Duration
	logger  *slog.Logger
}

// NewOpenAIClient builds a client from OPENAI_API_KEY.
func NewOpenAIClient(timeout time.Duration) (*OpenAIClient, error) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	llmClient, err := openai.New()
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return &OpenAIClient{
		llm:     llmClient,
		timeout: timeout,
		logger:  slog.Default().With("component", "llm"),
	}, nil
}

// Complete performs one chat completion with the request's model.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, req.System),
		llms.TextParts(schema.ChatMessageTypeHuman, req.User),
	}
	resp, err := c.llm.GenerateContent(ctx, messages,
		llms.WithModel(req.Model),
		llms.WithTemperature(req.Temperature),
		llms.WithMaxTokens(req.MaxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("completion returned no choices")
	}

	choice := resp.Choices[0]
	result := &CompletionResult{Text: choice.Content}
	result.InputTokens = intFromInfo(choice.GenerationInfo, "PromptTokens")
	result.OutputTokens = intFromInfo(choice.GenerationInfo, "CompletionTokens")
	if result.InputTokens == 0 && result.OutputTokens == 0 {
		result.InputTokens = estimateTokens(req.System) + estimateTokens(req.User)
		result.OutputTokens = estimateTokens(choice.Content)
	}

	c.logger.Debug("Completion done",
		"model", req.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens)
	return result, nil
}

// Close releases client resources. The HTTP client has none, kept for the
// interface contract.
func (c *OpenAIClient) Close() error { return nil }

func intFromInfo(info map[string]any, key string) int {
	if info == nil {
		return 0
	}
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// estimateTokens approximates token count when the API omits usage.
// Rough rule: one token per 3 bytes covers mixed Japanese/English text.
func estimateTokens(s string) int {
	return len(s)/3 + 1
}
