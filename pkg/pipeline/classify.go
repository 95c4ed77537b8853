package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
)

// Classify triages the input before the full pipeline runs: a health
// report proceeds through all three stages, while conversational or
// out-of-scope input is answered directly without any search calls.
func (p *Pipeline) Classify(ctx context.Context, input string) (*ClassifyResult, error) {
	systemPrompt := p.cfg.Prompts.Classify
	userPrompt := fmt.Sprintf("Input to classify: %s", input)

	response, err := p.cfg.LLM.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("LLM completion failed: %w", err)
	}

	result, err := parseClassifyResponse(response)
	if err != nil {
		// If parsing fails, default to health_report so real reports are
		// never dropped by a flaky triage response.
		if p.log != nil {
			p.log.Info("pipeline: classify parse failed, defaulting to health_report", "error", err)
		}
		return &ClassifyResult{
			Classification: ClassificationHealthReport,
			Reasoning:      "Classification failed, defaulting to health report",
		}, nil
	}

	return result, nil
}

// parseClassifyResponse extracts the classification from the LLM response.
func parseClassifyResponse(response string) (*ClassifyResult, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var result ClassifyResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	switch result.Classification {
	case ClassificationHealthReport, ClassificationConversational, ClassificationOutOfScope:
		// Valid
	default:
		return nil, fmt.Errorf("invalid classification: %s", result.Classification)
	}

	return &result, nil
}
