package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Limit on snippets rendered per finding in the synthesis prompt.
const maxSnippetsPerFinding = 10

// Synthesize creates the final ActionableInsight from the structured
// analysis and the research findings. This is Stage 3 of the pipeline.
//
// Schema-conformance failures are handled as in Structure: re-prompt with
// the failure, then fail with a SchemaValidationError.
func (p *Pipeline) Synthesize(ctx context.Context, report string, analysis *HealthAnalysis, findings []ResearchFinding) (*ActionableInsight, error) {
	systemPrompt := p.cfg.Prompts.Synthesize

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Original report:\n%s\n\n", report))
	sb.WriteString(formatAnalysis(analysis))
	sb.WriteString(formatFindings(findings))
	sb.WriteString("Synthesize the structured data and research findings above into a single actionable insight.")

	basePrompt := sb.String()
	userPrompt := basePrompt
	var lastErr error

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if p.log != nil {
				p.log.Info("pipeline: synthesis output rejected, re-prompting",
					"attempt", attempt,
					"error", lastErr)
			}
			userPrompt = fmt.Sprintf(`%s

Your previous response could not be used:
%s

Respond again with ONLY a JSON object conforming to the ActionableInsight
schema. "problem_type" must be one of the listed categories.`, basePrompt, lastErr)
		}

		response, err := p.cfg.LLM.Complete(ctx, systemPrompt, userPrompt)
		if err != nil {
			return nil, fmt.Errorf("LLM completion failed: %w", err)
		}

		insight, err := parseInsightResponse(response)
		if err == nil {
			return insight, nil
		}
		lastErr = err
	}

	return nil, &SchemaValidationError{Stage: "synthesize", Reason: lastErr.Error()}
}

// parseInsightResponse extracts and validates an ActionableInsight from
// the LLM response.
func parseInsightResponse(response string) (*ActionableInsight, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var insight ActionableInsight
	if err := json.Unmarshal([]byte(jsonStr), &insight); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if strings.TrimSpace(insight.Summary) == "" {
		return nil, fmt.Errorf("summary is empty")
	}
	if !insight.ProblemType.Valid() {
		return nil, fmt.Errorf("invalid problem_type: %q", insight.ProblemType)
	}
	if strings.TrimSpace(insight.RecommendedAction) == "" {
		return nil, fmt.Errorf("recommended_action is empty")
	}

	return &insight, nil
}

func formatAnalysis(analysis *HealthAnalysis) string {
	if len(analysis.Events) == 0 {
		return "Structured analysis: no distinct health events were identified.\n\n"
	}

	var sb strings.Builder
	sb.WriteString("Structured analysis:\n")
	for i, ev := range analysis.Events {
		sb.WriteString(fmt.Sprintf("%d. %s - locations: %s\n", i+1, ev.Issue, strings.Join(ev.Locations, ", ")))
	}
	sb.WriteString("\n")
	return sb.String()
}

func formatFindings(findings []ResearchFinding) string {
	if len(findings) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, f := range findings {
		sb.WriteString(fmt.Sprintf("## Research for event %d: %s\n", i+1, f.Event.Issue))

		// Confidence indicator so the model weighs failed searches properly
		if f.Err != "" {
			sb.WriteString("**Confidence**: LOW - all searches failed\n")
		} else {
			sb.WriteString("**Confidence**: HIGH\n")
		}

		sb.WriteString(fmt.Sprintf("**Findings**:\n%s\n", FormatFinding(f)))
	}
	return sb.String()
}

// FormatFinding formats a research finding for display in the synthesis
// prompt.
func FormatFinding(f ResearchFinding) string {
	if f.Err != "" {
		return fmt.Sprintf("Error: %s", f.Err)
	}

	if len(f.Snippets) == 0 {
		return "Search returned no results."
	}

	var sb strings.Builder
	display := len(f.Snippets)
	if display > maxSnippetsPerFinding {
		display = maxSnippetsPerFinding
	}

	for _, s := range f.Snippets[:display] {
		text := s.Text
		if len(text) > 300 {
			text = text[:297] + "..."
		}
		sb.WriteString(fmt.Sprintf("- %s: %s (%s)\n", s.Title, text, s.URL))
	}

	if len(f.Snippets) > display {
		sb.WriteString(fmt.Sprintf("... and %d more results\n", len(f.Snippets)-display))
	}

	return sb.String()
}
