package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// Respond generates a direct answer for input that was not classified as
// a health report, without running the structuring or research stages.
func (p *Pipeline) Respond(ctx context.Context, input string) (string, error) {
	systemPrompt := p.cfg.Prompts.Respond
	userPrompt := fmt.Sprintf("Message: %s", input)

	response, err := p.cfg.LLM.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("LLM completion failed: %w", err)
	}

	return strings.TrimSpace(response), nil
}
