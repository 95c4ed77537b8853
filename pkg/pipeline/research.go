package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// Research gathers localized context for each health event.
// This is Stage 2 of the pipeline.
//
// One ResearchFinding is produced per event, preserving input order. A
// failed search never aborts the run: the failure is recorded on the
// finding and synthesis weighs it accordingly.
func (p *Pipeline) Research(ctx context.Context, analysis *HealthAnalysis) []ResearchFinding {
	findings := make([]ResearchFinding, 0, len(analysis.Events))

	for i, ev := range analysis.Events {
		finding := p.researchEvent(ctx, i+1, ev)
		findings = append(findings, finding)
		p.progress(Progress{
			Stage:       StageResearching,
			EventsTotal: len(analysis.Events),
			EventsDone:  i + 1,
		})
	}

	return findings
}

// researchEvent issues one search per location for the event, capped at
// MaxQueriesPerEvent. The eventNum is a 1-indexed identifier for logging.
func (p *Pipeline) researchEvent(ctx context.Context, eventNum int, ev HealthEvent) ResearchFinding {
	finding := ResearchFinding{Event: ev}

	locations := ev.Locations
	if len(locations) > p.cfg.MaxQueriesPerEvent {
		locations = locations[:p.cfg.MaxQueriesPerEvent]
	}

	var errs []string
	for _, loc := range locations {
		loc = strings.TrimSpace(loc)
		if loc == "" {
			continue
		}

		query := composeQuery(ev.Issue, loc)
		finding.Queries = append(finding.Queries, query)

		snippets, err := p.cfg.Searcher.Search(ctx, query)
		if err != nil {
			if p.log != nil {
				p.log.Warn("pipeline: search failed",
					"event", eventNum,
					"issue", ev.Issue,
					"query", query,
					"error", err)
			}
			errs = append(errs, err.Error())
			continue
		}
		finding.Snippets = append(finding.Snippets, snippets...)
	}

	if len(finding.Snippets) == 0 && len(errs) > 0 {
		finding.Err = strings.Join(errs, "; ")
	}

	if p.log != nil {
		p.log.Info("pipeline: event researched",
			"event", eventNum,
			"issue", ev.Issue,
			"queries", len(finding.Queries),
			"snippets", len(finding.Snippets))
	}

	return finding
}

// composeQuery builds the localized search query for an issue.
// For issue "flu outbreak" and location "90210" the query is
// "flu outbreak 90210".
func composeQuery(issue, location string) string {
	return fmt.Sprintf("%s %s", strings.TrimSpace(issue), location)
}
