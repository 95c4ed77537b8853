package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

// GeminiLLMClient implements LLMClient using the Gemini API.
type GeminiLLMClient struct {
	client    *genai.Client
	model     string
	maxTokens int64
}

// NewGeminiLLMClient creates a new Gemini-based LLM client.
func NewGeminiLLMClient(ctx context.Context, apiKey, model string, maxTokens int64) (*GeminiLLMClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiLLMClient{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Complete sends a prompt to Gemini and returns the response text.
// Gemini handles prompt caching implicitly, so the cache option is a no-op.
func (c *GeminiLLMClient) Complete(ctx context.Context, systemPrompt, userPrompt string, opts ...CompleteOption) (string, error) {
	start := time.Now()
	slog.Debug("Gemini API call starting", "model", c.model, "maxTokens", c.maxTokens, "userPromptLen", len(userPrompt))

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
		MaxOutputTokens: int32(c.maxTokens),
	})

	duration := time.Since(start)
	if err != nil {
		slog.Error("Gemini API call failed", "duration", duration, "error", err)
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	slog.Debug("Gemini API call completed", "duration", duration)

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("no text content in response")
	}

	return text, nil
}
