//go:build evals

package evals_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/healthequitylab/insights-agent/pkg/pipeline"
	"github.com/healthequitylab/insights-agent/pkg/search"
)

func TestInsightsAgent_Evals_Anthropic_ConversationalInput(t *testing.T) {
	t.Parallel()
	requireAnthropic(t)

	runTest_ConversationalInput(t, newAnthropicLLMClient)
}

func TestInsightsAgent_Evals_Gemini_ConversationalInput(t *testing.T) {
	t.Parallel()
	requireGemini(t)

	runTest_ConversationalInput(t, newGeminiLLMClient)
}

func runTest_ConversationalInput(t *testing.T, llmFactory LLMClientFactory) {
	ctx := context.Background()

	searcher := &stubSearcher{snippets: map[string][]search.Snippet{}}
	p := setupPipeline(t, ctx, llmFactory, searcher)

	result, err := p.Run(ctx, "hi, what can you do?")
	require.NoError(t, err)

	require.NotEqual(t, pipeline.ClassificationHealthReport, result.Classification)
	require.NotEmpty(t, result.Answer)
	require.Nil(t, result.Insight, "conversational input should not produce an insight")

	t.Logf("Answer: %s", result.Answer)
}
