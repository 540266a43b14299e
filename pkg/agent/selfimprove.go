package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/cost"
	"github.com/bcnofne/shipos/pkg/llm"
)

const selfImproveSystemPrompt = `あなたはコードレビュアーだ。渡されたファイルについて、
依頼内容に沿った改善案を箇条書きで提案する。コードを書き換えるのではなく、
何をどう直すべきかを説明すること。`

// maxAnalyzeBytes caps the file slice sent for analysis.
const maxAnalyzeBytes = 8 * 1024

// SelfModifier handles the plan's self_improve request. Analyze-only:
// it reads the target and produces a review, it never writes code.
type SelfModifier struct {
	cfg    *config.Config
	client llm.Client
	guard  *cost.Guard
	logger *slog.Logger
}

// NewSelfModifier creates the analyzer.
func NewSelfModifier(cfg *config.Config, client llm.Client, guard *cost.Guard) *SelfModifier {
	return &SelfModifier{
		cfg:    cfg,
		client: client,
		guard:  guard,
		logger: slog.Default().With("component", "self-modifier"),
	}
}

// Analyze reviews targetFile per the request and returns the report text.
// The target must live inside the data directory.
func (s *SelfModifier) Analyze(ctx context.Context, targetFile, request string) (string, error) {
	if targetFile == "" || request == "" {
		return "", fmt.Errorf("self-improve needs target_file and request")
	}

	path := targetFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.cfg.DataDir, path)
	}
	path = filepath.Clean(path)
	root := filepath.Clean(s.cfg.DataDir)
	if path != root && !isUnder(path, root) {
		return "", fmt.Errorf("target %q outside data directory", targetFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading target: %w", err)
	}
	if len(data) > maxAnalyzeBytes {
		data = data[:maxAnalyzeBytes]
	}

	user := fmt.Sprintf("依頼: %s\n\n対象ファイル %s:\n```\n%s\n```", request, targetFile, data)
	result, err := s.client.Complete(ctx, llm.CompletionRequest{
		Model:       s.cfg.LLM.Model,
		System:      selfImproveSystemPrompt,
		User:        user,
		Temperature: 0.3,
		MaxTokens:   s.cfg.LLM.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("analysis completion: %w", err)
	}
	s.guard.Record(s.cfg.LLM.Model, result.InputTokens, result.OutputTokens)
	s.logger.Info("Self-improve analysis produced", "target", targetFile)
	return result.Text, nil
}

func isUnder(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || filepath.IsLocal(rel)
}
