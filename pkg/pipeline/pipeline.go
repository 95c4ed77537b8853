// Package pipeline implements a three-stage insights pipeline that turns
// an unstructured health report into one structured, actionable insight.
// The stages run strictly in sequence: structure the report into health
// events, research each event through a web search API, and synthesize
// the analysis and findings into a final insight.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Pipeline orchestrates the insight extraction process.
type Pipeline struct {
	cfg *Config
	log *slog.Logger
}

// New creates a new Pipeline.
func New(cfg *Config) (*Pipeline, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("LLM client is required")
	}
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if cfg.Prompts == nil {
		return nil, fmt.Errorf("prompts are required")
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.MaxQueriesPerEvent == 0 {
		cfg.MaxQueriesPerEvent = 3
	}

	return &Pipeline{
		cfg: cfg,
		log: cfg.Logger,
	}, nil
}

// Run executes the full pipeline for a report.
func (p *Pipeline) Run(ctx context.Context, report string) (*Result, error) {
	report = strings.TrimSpace(report)
	if report == "" {
		return nil, errors.New("report is empty")
	}

	result := &Result{
		RunID:  uuid.New(),
		Report: report,
	}

	// Pre-step: triage the input before spending search and synthesis calls
	p.progress(Progress{Stage: StageClassifying})
	cls, err := p.Classify(ctx, report)
	if err != nil {
		p.progress(Progress{Stage: StageError, Err: err})
		return nil, err
	}
	result.Classification = cls.Classification
	if p.log != nil {
		p.log.Info("pipeline: input classified", "run", result.RunID, "classification", cls.Classification)
	}

	if cls.Classification != ClassificationHealthReport {
		answer := cls.DirectResponse
		if answer == "" {
			answer, err = p.Respond(ctx, report)
			if err != nil {
				p.progress(Progress{Stage: StageError, Err: err})
				return nil, err
			}
		}
		result.Answer = answer
		p.progress(Progress{Stage: StageComplete, Classification: cls.Classification})
		return result, nil
	}

	// Stage 1: structure the report into health events
	if p.log != nil {
		p.log.Info("pipeline: stage 1 - structuring report", "run", result.RunID)
	}
	p.progress(Progress{Stage: StageStructuring, Classification: cls.Classification})
	analysis, err := p.Structure(ctx, report)
	if err != nil {
		p.progress(Progress{Stage: StageError, Err: err})
		return nil, err
	}
	result.Analysis = analysis
	if p.log != nil {
		p.log.Info("pipeline: report structured", "run", result.RunID, "events", len(analysis.Events))
	}
	p.progress(Progress{Stage: StageStructured, Events: analysis.Events, EventsTotal: len(analysis.Events)})

	// Stage 2: research each event, in order. Skipped entirely when the
	// report yielded no events; synthesis then works from the report alone.
	if len(analysis.Events) > 0 {
		if p.log != nil {
			p.log.Info("pipeline: stage 2 - researching events", "run", result.RunID, "events", len(analysis.Events))
		}
		p.progress(Progress{Stage: StageResearching, EventsTotal: len(analysis.Events)})
		result.Findings = p.Research(ctx, analysis)
	}

	// Stage 3: synthesize the final insight
	if p.log != nil {
		p.log.Info("pipeline: stage 3 - synthesizing insight", "run", result.RunID)
	}
	p.progress(Progress{Stage: StageSynthesizing, EventsTotal: len(analysis.Events), EventsDone: len(result.Findings)})
	insight, err := p.Synthesize(ctx, report, analysis, result.Findings)
	if err != nil {
		p.progress(Progress{Stage: StageError, Err: err})
		return nil, err
	}
	result.Insight = insight
	if p.log != nil {
		p.log.Info("pipeline: insight synthesized", "run", result.RunID, "problemType", insight.ProblemType)
	}

	p.progress(Progress{Stage: StageComplete, Classification: cls.Classification})
	return result, nil
}

func (p *Pipeline) progress(pr Progress) {
	if p.cfg.OnProgress != nil {
		p.cfg.OnProgress(pr)
	}
}
