// Package vectorsearch ranks candidate profiles by embedding similarity.
package vectorsearch

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ErrEmptyQuery is returned when the query vector has no components
var ErrEmptyQuery = errors.New("query vector is empty")

// Result is one ranked candidate. Score is cosine similarity, higher is closer.
type Result struct {
	ID    string  `json:"match_id" db:"match_id"`
	Score float64 `json:"score" db:"score"`
}

// Searcher returns up to limit candidates from candidateIDs ordered by
// descending similarity to query.
type Searcher interface {
	Search(ctx context.Context, query []float32, candidateIDs []string, limit int) ([]Result, error)
}

// PGVectorSearcher queries the profiles.embedding column through pgvector's
// cosine distance operator.
type PGVectorSearcher struct {
	db      database.DB
	logger  ectologger.Logger
	timeout time.Duration
}

func NewPGVectorSearcher(db database.DB, logger ectologger.Logger, timeout time.Duration) *PGVectorSearcher {
	return &PGVectorSearcher{
		db:      db,
		logger:  logger,
		timeout: timeout,
	}
}

const knnQuery = `
	SELECT id AS match_id, 1 - (embedding <=> $1::vector) AS score
	FROM profiles
	WHERE id = ANY($2::uuid[])
	AND embedding IS NOT NULL
	AND vector_norm(embedding) > 0
	ORDER BY embedding <=> $1::vector
	LIMIT $3
`

func (s *PGVectorSearcher) Search(ctx context.Context, query []float32, candidateIDs []string, limit int) ([]Result, error) {
	ctx, span := tracing.StartSpan(ctx, "vectorsearch.PGVectorSearcher.Search")
	defer span.End()

	if len(query) == 0 {
		return nil, ErrEmptyQuery
	}
	if len(candidateIDs) == 0 || limit <= 0 {
		return []Result{}, nil
	}
	// cosine distance against a zero vector is NaN in pgvector
	if isZero(query) {
		s.logger.WithContext(ctx).Warn("Query embedding is a zero vector; nothing to rank")
		return []Result{}, nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	var results []Result
	err := s.db.SelectContext(ctx, &results, knnQuery, database.Vector(query).String(), pq.Array(candidateIDs), limit)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.VectorSearchDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"candidates": len(candidateIDs),
			"limit":      limit,
		}).Error("Vector search failed")
		return nil, err
	}

	return results, nil
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
