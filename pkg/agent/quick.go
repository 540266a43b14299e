package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/cost"
	"github.com/bcnofne/shipos/pkg/llm"
)

const quickSystemPrompt = `あなたは船乗り風の常駐AI「BCNOFNe」。
質問に2〜3文で簡潔に答える。わからないことは正直に「わからない」と言う。
JSONではなく普通の文章で答えること。`

// QuickResponder answers query events with a short one-shot completion on
// the cheaper model, separate from the planner's plan schema.
type QuickResponder struct {
	cfg    *config.LLMConfig
	client llm.Client
	guard  *cost.Guard
	logger *slog.Logger
}

// NewQuickResponder creates the responder sharing the planner's client.
func NewQuickResponder(cfg *config.Config, client llm.Client, guard *cost.Guard) *QuickResponder {
	return &QuickResponder{
		cfg:    &cfg.LLM,
		client: client,
		guard:  guard,
		logger: slog.Default().With("component", "quick-responder"),
	}
}

// Answer returns a short reply to the question.
func (q *QuickResponder) Answer(ctx context.Context, question string) (string, error) {
	result, err := q.client.Complete(ctx, llm.CompletionRequest{
		Model:       q.cfg.QuickResponseModel,
		System:      quickSystemPrompt,
		User:        question,
		Temperature: q.cfg.QuickTemperature,
		MaxTokens:   q.cfg.QuickMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("quick answer: %w", err)
	}
	q.guard.Record(q.cfg.QuickResponseModel, result.InputTokens, result.OutputTokens)

	answer := strings.TrimSpace(result.Text)
	q.logger.Info("Quick answer produced", "chars", len(answer))
	return answer, nil
}
