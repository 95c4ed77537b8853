package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/healthequitylab/insights-agent/pkg/search"
)

// Config holds the configuration for the pipeline.
type Config struct {
	Logger   *slog.Logger
	LLM      LLMClient
	Searcher search.Searcher
	Prompts  *Prompts

	MaxTokens          int64
	MaxRetries         int // Re-prompts after a schema-conformance failure (default 2)
	MaxQueriesPerEvent int // Cap on searches per health event (default 3)

	OnProgress ProgressCallback // Optional stage reporting
}

// CompleteOptions holds options for LLM completion.
type CompleteOptions struct {
	CacheSystemPrompt bool // Enable prompt caching for the system prompt
}

// CompleteOption is a functional option for Complete.
type CompleteOption func(*CompleteOptions)

// WithCacheControl enables prompt caching for the system prompt.
// This marks the system prompt as cacheable, reducing costs for
// repeated calls with the same system prompt prefix.
func WithCacheControl() CompleteOption {
	return func(o *CompleteOptions) {
		o.CacheSystemPrompt = true
	}
}

// LLMClient is the interface for interacting with an LLM.
type LLMClient interface {
	// Complete sends a prompt and returns the response text.
	// Options can be passed to control caching behavior.
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts ...CompleteOption) (string, error)
}

// HealthEvent links a single health issue to the locations it affects.
// Locations can be zip codes, neighborhoods, or general areas.
type HealthEvent struct {
	Issue     string   `json:"issue"`
	Locations []string `json:"locations"`
}

// Validate checks the event invariants: a non-empty issue and at least
// one non-empty location.
func (e HealthEvent) Validate() error {
	if strings.TrimSpace(e.Issue) == "" {
		return fmt.Errorf("event has an empty issue")
	}
	for _, loc := range e.Locations {
		if strings.TrimSpace(loc) != "" {
			return nil
		}
	}
	return fmt.Errorf("event %q has no locations", e.Issue)
}

// HealthAnalysis is the structured output of the structuring stage.
// It is immutable after being produced.
type HealthAnalysis struct {
	Events []HealthEvent `json:"health_events"`
}

// Validate checks every event against the HealthEvent invariants.
func (a *HealthAnalysis) Validate() error {
	for i, ev := range a.Events {
		if err := ev.Validate(); err != nil {
			return fmt.Errorf("health_events[%d]: %w", i, err)
		}
	}
	return nil
}

// ResearchFinding holds the search results gathered for one health event.
// Exactly one finding is produced per event, in input order.
type ResearchFinding struct {
	Event    HealthEvent
	Queries  []string // Queries issued, in order
	Snippets []search.Snippet
	Err      string // Set when every search for the event failed
}

// ProblemType categorizes the main issue of an insight.
type ProblemType string

const (
	ProblemHealthcareAccess  ProblemType = "HEALTHCARE_ACCESS"
	ProblemEnvironmentalRisk ProblemType = "ENVIRONMENTAL_RISK"
	ProblemDiseaseOutbreak   ProblemType = "DISEASE_OUTBREAK"
	ProblemEmergingCrisis    ProblemType = "EMERGING_CRISIS"
	ProblemGeneralConcern    ProblemType = "GENERAL_HEALTH_CONCERN"
)

// Valid reports whether the problem type is one of the known categories.
func (t ProblemType) Valid() bool {
	switch t {
	case ProblemHealthcareAccess, ProblemEnvironmentalRisk, ProblemDiseaseOutbreak,
		ProblemEmergingCrisis, ProblemGeneralConcern:
		return true
	}
	return false
}

// ActionableInsight is the terminal artifact of the pipeline, consumed by
// downstream systems.
type ActionableInsight struct {
	Summary           string      `json:"summary"`
	ProblemType       ProblemType `json:"problem_type"`
	RecommendedAction string      `json:"recommended_action"`
}

// Classification represents how the input text was triaged.
type Classification string

const (
	ClassificationHealthReport   Classification = "health_report"
	ClassificationConversational Classification = "conversational"
	ClassificationOutOfScope     Classification = "out_of_scope"
)

// ClassifyResult holds the result of input triage.
type ClassifyResult struct {
	Classification Classification `json:"classification"`
	Reasoning      string         `json:"reasoning"`
	DirectResponse string         `json:"direct_response,omitempty"`
}

// ProgressStage represents a stage in the pipeline execution.
type ProgressStage string

const (
	StageClassifying  ProgressStage = "classifying"
	StageStructuring  ProgressStage = "structuring"
	StageStructured   ProgressStage = "structured"
	StageResearching  ProgressStage = "researching"
	StageSynthesizing ProgressStage = "synthesizing"
	StageComplete     ProgressStage = "complete"
	StageError        ProgressStage = "error"
)

// Progress represents the current state of pipeline execution.
type Progress struct {
	Stage          ProgressStage
	Classification Classification // Set after classifying
	Events         []HealthEvent  // Set after structuring
	EventsTotal    int            // Events to research
	EventsDone     int            // Events researched so far
	Err            error          // Set if an error occurred
}

// ProgressCallback is called at each stage of pipeline execution.
type ProgressCallback func(Progress)

// Result holds the complete result of running the pipeline.
type Result struct {
	RunID  uuid.UUID
	Report string

	// Pre-step: triage
	Classification Classification

	// Stage 1: structuring (health_report only)
	Analysis *HealthAnalysis

	// Stage 2: research (health_report only)
	Findings []ResearchFinding

	// Stage 3: synthesis (health_report only)
	Insight *ActionableInsight

	// Direct answer for conversational / out-of-scope input
	Answer string
}
