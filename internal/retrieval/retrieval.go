// Package retrieval defines the ranked top-k lookup over a reference
// corpus used to enrich generation prompts. Only the interface lives
// here; the Postgres full-text implementation is in
// internal/platform/postgres.
package retrieval

import "context"

// Snippet is one ranked piece of reference text.
type Snippet struct {
	Text  string
	Score float64
}

// Retriever performs a ranked lookup over the reference corpus.
// Implementations return at most limit snippets ordered by descending
// relevance; an empty result is not an error.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]Snippet, error)
}

// Texts flattens snippets to their text, in rank order.
func Texts(snippets []Snippet) []string {
	out := make([]string, 0, len(snippets))
	for _, s := range snippets {
		if s.Text == "" {
			continue
		}
		out = append(out, s.Text)
	}
	return out
}
