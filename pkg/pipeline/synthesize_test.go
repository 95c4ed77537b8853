package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/healthequitylab/insights-agent/pkg/search"
)

func TestPipeline_Synthesize_ValidInsight(t *testing.T) {
	llm := newFakeLLM()
	llm.queue("synthesize", "```json\n{\"summary\": \"Flu cluster in 90210\", \"problem_type\": \"DISEASE_OUTBREAK\", \"recommended_action\": \"Alert local health department\"}\n```")

	p := newTestPipeline(t, llm, newFakeSearcher())
	analysis := &HealthAnalysis{Events: []HealthEvent{{Issue: "flu outbreak", Locations: []string{"90210"}}}}
	findings := []ResearchFinding{{
		Event:    analysis.Events[0],
		Queries:  []string{"flu outbreak 90210"},
		Snippets: []search.Snippet{{Title: "Alert", URL: "https://example.org", Text: "Cases rising."}},
	}}

	insight, err := p.Synthesize(context.Background(), "Flu cases rising in zip 90210", analysis, findings)
	require.NoError(t, err)
	require.Equal(t, ProblemDiseaseOutbreak, insight.ProblemType)
	require.Equal(t, "Flu cluster in 90210", insight.Summary)
	require.Equal(t, "Alert local health department", insight.RecommendedAction)
}

func TestPipeline_Synthesize_InvalidProblemTypeRetries(t *testing.T) {
	llm := newFakeLLM()
	llm.queue("synthesize", `{"summary": "s", "problem_type": "PANDEMIC", "recommended_action": "a"}`)
	llm.queue("synthesize", `{"summary": "s", "problem_type": "DISEASE_OUTBREAK", "recommended_action": "a"}`)

	p := newTestPipeline(t, llm, newFakeSearcher())
	analysis := &HealthAnalysis{Events: []HealthEvent{{Issue: "flu", Locations: []string{"90210"}}}}

	insight, err := p.Synthesize(context.Background(), "report", analysis, nil)
	require.NoError(t, err)
	require.Equal(t, ProblemDiseaseOutbreak, insight.ProblemType)
	require.Equal(t, 2, llm.calls["synthesize"])
}

func TestPipeline_Synthesize_FailsAfterMaxRetries(t *testing.T) {
	llm := newFakeLLM()
	llm.queue("synthesize", `{"summary": "", "problem_type": "DISEASE_OUTBREAK", "recommended_action": "a"}`)
	llm.queue("synthesize", `{"summary": "s", "problem_type": "DISEASE_OUTBREAK", "recommended_action": ""}`)
	llm.queue("synthesize", "not json")

	p := newTestPipeline(t, llm, newFakeSearcher())
	analysis := &HealthAnalysis{Events: []HealthEvent{{Issue: "flu", Locations: []string{"90210"}}}}

	_, err := p.Synthesize(context.Background(), "report", analysis, nil)

	var schemaErr *SchemaValidationError
	require.ErrorAs(t, err, &schemaErr)
	require.Equal(t, "synthesize", schemaErr.Stage)
	require.Equal(t, 3, llm.calls["synthesize"])
}

func TestPipeline_Synthesize_PromptMarksFailedFindingsLowConfidence(t *testing.T) {
	llm := newFakeLLM()
	llm.queue("synthesize", `{"summary": "s", "problem_type": "GENERAL_HEALTH_CONCERN", "recommended_action": "a"}`)

	var capturedUser string
	capturing := &capturingLLM{inner: llm, capture: &capturedUser}

	p, err := New(&Config{
		LLM:      capturing,
		Searcher: newFakeSearcher(),
		Prompts:  testPrompts(),
	})
	require.NoError(t, err)

	analysis := &HealthAnalysis{Events: []HealthEvent{{Issue: "flu", Locations: []string{"90210"}}}}
	findings := []ResearchFinding{{Event: analysis.Events[0], Err: "quota exceeded"}}

	_, err = p.Synthesize(context.Background(), "report", analysis, findings)
	require.NoError(t, err)
	require.Contains(t, capturedUser, "LOW - all searches failed")
	require.Contains(t, capturedUser, "quota exceeded")
}

type capturingLLM struct {
	inner   LLMClient
	capture *string
}

func (c *capturingLLM) Complete(ctx context.Context, systemPrompt, userPrompt string, opts ...CompleteOption) (string, error) {
	*c.capture = userPrompt
	return c.inner.Complete(ctx, systemPrompt, userPrompt, opts...)
}

func TestParseInsightResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantErr  string
	}{
		{
			name:     "valid",
			response: `{"summary": "s", "problem_type": "HEALTHCARE_ACCESS", "recommended_action": "a"}`,
		},
		{
			name:     "no JSON",
			response: "plain text",
			wantErr:  "no JSON found",
		},
		{
			name:     "empty summary",
			response: `{"summary": " ", "problem_type": "HEALTHCARE_ACCESS", "recommended_action": "a"}`,
			wantErr:  "summary is empty",
		},
		{
			name:     "unknown problem type",
			response: `{"summary": "s", "problem_type": "WEATHER", "recommended_action": "a"}`,
			wantErr:  "invalid problem_type",
		},
		{
			name:     "missing recommended action",
			response: `{"summary": "s", "problem_type": "HEALTHCARE_ACCESS"}`,
			wantErr:  "recommended_action is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insight, err := parseInsightResponse(tt.response)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.True(t, insight.ProblemType.Valid())
		})
	}
}

func TestFormatFinding(t *testing.T) {
	tests := []struct {
		name     string
		finding  ResearchFinding
		contains []string
	}{
		{
			name:     "error finding",
			finding:  ResearchFinding{Err: "quota exceeded"},
			contains: []string{"Error: quota exceeded"},
		},
		{
			name:     "no results",
			finding:  ResearchFinding{},
			contains: []string{"no results"},
		},
		{
			name: "snippets",
			finding: ResearchFinding{Snippets: []search.Snippet{
				{Title: "Alert", URL: "https://example.org", Text: "Cases rising."},
			}},
			contains: []string{"Alert", "Cases rising.", "https://example.org"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FormatFinding(tt.finding)
			for _, want := range tt.contains {
				require.Contains(t, out, want)
			}
		})
	}
}

func TestFormatFinding_TruncatesLongSnippetLists(t *testing.T) {
	var snippets []search.Snippet
	for i := 0; i < maxSnippetsPerFinding+5; i++ {
		snippets = append(snippets, search.Snippet{Title: "t", Text: "x", URL: "u"})
	}

	out := FormatFinding(ResearchFinding{Snippets: snippets})
	require.Contains(t, out, "and 5 more results")
	require.Equal(t, maxSnippetsPerFinding, strings.Count(out, "- t:"))
}
