package postgres

import (
	"context"
	"log/slog"

	"github.com/examgen/examgen-api/internal/platform/logger"
	"github.com/examgen/examgen-api/internal/retrieval"
	"github.com/examgen/examgen-api/internal/store"
)

// SnippetStore implements retrieval.Retriever with Postgres full-text
// search over the snippets corpus table. Rank comes from ts_rank
// against a generated tsvector column.
type SnippetStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewSnippetStore creates a PostgreSQL snippet store.
func NewSnippetStore(db store.DBTX, logger *slog.Logger) *SnippetStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnippetStore{
		db:     db,
		logger: logger.With(slog.String("component", "snippet_store")),
	}
}

var _ retrieval.Retriever = (*SnippetStore)(nil)

// Retrieve implements retrieval.Retriever. A query with no matches
// returns an empty slice.
func (s *SnippetStore) Retrieve(ctx context.Context, query string, limit int) ([]retrieval.Snippet, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if limit <= 0 {
		limit = 10
	}

	sqlQuery := `
		SELECT content, ts_rank(tsv, plainto_tsquery('english', $1)) AS rank
		FROM snippets
		WHERE tsv @@ plainto_tsquery('english', $1)
		ORDER BY rank DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, sqlQuery, query, limit)
	if err != nil {
		log.Error("failed to query snippets",
			slog.String("query", query),
			slog.String("error", err.Error()))
		return nil, store.NewStoreError("snippet", "retrieve", "query failed", err)
	}
	defer func() { _ = rows.Close() }()

	var snippets []retrieval.Snippet
	for rows.Next() {
		var snippet retrieval.Snippet
		if err := rows.Scan(&snippet.Text, &snippet.Score); err != nil {
			return nil, store.NewStoreError("snippet", "retrieve", "scan failed", err)
		}
		snippets = append(snippets, snippet)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("snippet", "retrieve", "row iteration", err)
	}

	log.Debug("retrieved snippets",
		slog.String("query", query),
		slog.Int("count", len(snippets)))
	return snippets, nil
}
