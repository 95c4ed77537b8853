package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
)

// Structure parses an unstructured report into a HealthAnalysis.
// This is Stage 1 of the pipeline.
//
// A response that cannot be parsed or that violates the event invariants
// is re-prompted with the validation failure appended, up to MaxRetries
// times, before the stage fails with a SchemaValidationError.
func (p *Pipeline) Structure(ctx context.Context, report string) (*HealthAnalysis, error) {
	systemPrompt := p.cfg.Prompts.Structure
	basePrompt := fmt.Sprintf("Health report:\n\n%s", report)

	userPrompt := basePrompt
	var lastErr error

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if p.log != nil {
				p.log.Info("pipeline: structuring output rejected, re-prompting",
					"attempt", attempt,
					"error", lastErr)
			}
			userPrompt = fmt.Sprintf(`%s

Your previous response could not be used:
%s

Respond again with ONLY a JSON object conforming to the schema. Every
event must have a non-empty "issue" and at least one location.`, basePrompt, lastErr)
		}

		// The structuring system prompt is constant across retries and runs,
		// so mark it cacheable.
		response, err := p.cfg.LLM.Complete(ctx, systemPrompt, userPrompt, WithCacheControl())
		if err != nil {
			return nil, fmt.Errorf("LLM completion failed: %w", err)
		}

		analysis, err := parseAnalysisResponse(response)
		if err == nil {
			return analysis, nil
		}
		lastErr = err
	}

	return nil, &SchemaValidationError{Stage: "structure", Reason: lastErr.Error()}
}

// parseAnalysisResponse extracts and validates a HealthAnalysis from the
// LLM response.
func parseAnalysisResponse(response string) (*HealthAnalysis, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var analysis HealthAnalysis
	if err := json.Unmarshal([]byte(jsonStr), &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if err := analysis.Validate(); err != nil {
		return nil, err
	}

	return &analysis, nil
}
