package match

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Repository handles match persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new match repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// UpsertMany writes matches keyed on (user_id, match_id). Re-running with
// the same input leaves exactly one row per pair with the latest score.
func (r *Repository) UpsertMany(ctx context.Context, matches []models.Match) error {
	ctx, span := tracing.StartSpan(ctx, "match.Repository.UpsertMany")
	defer span.End()

	matches = dedupe(matches)
	if len(matches) == 0 {
		return nil
	}

	now := time.Now().UTC()
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("matches")
	ib.Cols("user_id", "match_id", "score", "created_at", "updated_at")
	for _, m := range matches {
		ib.Values(m.UserID, m.MatchID, m.Score, now, now)
	}

	query, args := ib.Build()
	query += " ON CONFLICT (user_id, match_id) DO UPDATE SET score = EXCLUDED.score, updated_at = EXCLUDED.updated_at"

	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(matches)}).Error("Failed to upsert matches")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save matches")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(matches)}).Debug("Upserted matches")
	return nil
}

// Postgres rejects an upsert that touches the same row twice
func dedupe(matches []models.Match) []models.Match {
	seen := make(map[[2]string]struct{}, len(matches))
	out := make([]models.Match, 0, len(matches))
	for _, m := range matches {
		key := [2]string{m.UserID, m.MatchID}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}

// DeleteExcept removes userID's matches whose match_id is not in keep
func (r *Repository) DeleteExcept(ctx context.Context, userID string, keep []string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "match.Repository.DeleteExcept")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("matches")
	where := []string{db.Equal("user_id", userID)}
	if len(keep) > 0 {
		where = append(where, "NOT (match_id = ANY("+db.Var(pq.Array(keep))+"::uuid[]))")
	}
	db.Where(where...)

	query, args := db.Build()
	res, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("user_id", userID).Error("Failed to prune matches")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to prune matches")
	}

	n, _ := res.RowsAffected()
	return n, nil
}

// ListByUser returns userID's stored matches, best first
func (r *Repository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Match, error) {
	ctx, span := tracing.StartSpan(ctx, "match.Repository.ListByUser")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("user_id", "match_id", "score", "created_at", "updated_at")
	sb.From("matches")
	sb.Where(sb.Equal("user_id", userID))
	sb.OrderBy("score DESC", "match_id")
	sb.Limit(limit)

	query, args := sb.Build()
	matches := []models.Match{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &matches, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("user_id", userID).Error("Failed to list matches")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list matches")
	}

	return matches, nil
}
