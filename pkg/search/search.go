// Package search provides web search clients used by the research stage
// of the insights pipeline.
package search

import "context"

// Snippet is a single search result.
type Snippet struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

// Searcher executes web searches.
type Searcher interface {
	// Search returns result snippets for a query.
	Search(ctx context.Context, query string) ([]Snippet, error)
}
