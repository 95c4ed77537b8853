//go:build evals

package evals_test

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	"github.com/healthequitylab/insights-agent/pkg/pipeline"
	"github.com/healthequitylab/insights-agent/pkg/search"
)

func init() {
	possiblePaths := []string{".env", "../.env"}

	for _, path := range possiblePaths {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}
}

// LLMClientFactory builds a real LLM client for an eval run.
type LLMClientFactory func(t *testing.T, ctx context.Context) pipeline.LLMClient

func newAnthropicLLMClient(t *testing.T, _ context.Context) pipeline.LLMClient {
	t.Helper()
	return pipeline.NewAnthropicLLMClient(anthropic.ModelClaudeSonnet4_5_20250929, 4096)
}

func newGeminiLLMClient(t *testing.T, ctx context.Context) pipeline.LLMClient {
	t.Helper()
	client, err := pipeline.NewGeminiLLMClient(ctx, os.Getenv("GEMINI_API_KEY"), "gemini-2.5-flash", 4096)
	require.NoError(t, err)
	return client
}

func requireAnthropic(t *testing.T) {
	t.Helper()
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		t.Skip("ANTHROPIC_API_KEY not set, skipping eval test")
	}
}

func requireGemini(t *testing.T) {
	t.Helper()
	if os.Getenv("GEMINI_API_KEY") == "" {
		t.Skip("GEMINI_API_KEY not set, skipping eval test")
	}
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// stubSearcher serves canned local-news snippets so evals exercise the
// LLM stages without burning search API quota.
type stubSearcher struct {
	snippets map[string][]search.Snippet
}

func (s *stubSearcher) Search(_ context.Context, query string) ([]search.Snippet, error) {
	for key, snippets := range s.snippets {
		if strings.Contains(query, key) {
			return snippets, nil
		}
	}
	return nil, nil
}

func setupPipeline(t *testing.T, ctx context.Context, llmFactory LLMClientFactory, searcher search.Searcher) *pipeline.Pipeline {
	t.Helper()

	prompts, err := pipeline.LoadPrompts()
	require.NoError(t, err)

	p, err := pipeline.New(&pipeline.Config{
		Logger:   testLogger(t),
		LLM:      llmFactory(t, ctx),
		Searcher: searcher,
		Prompts:  prompts,
	})
	require.NoError(t, err)
	return p
}
