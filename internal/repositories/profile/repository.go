package profile

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const uniqueViolation = "23505"

// Repository handles profile persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new profile repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func selectProfiles() *sqlbuilder.SelectBuilder {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(models.ProfileColumns...)
	sb.From("profiles")
	return sb
}

// Create inserts a new signup profile at progress step 1
func (r *Repository) Create(ctx context.Context, req models.CreateProfileRequest) (*models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	id := uuid.New().String()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("profiles")
	ib.Cols("id", "email", "first_name", "last_name", "dob", "progress", "is_complete", "test_scores", "created_at", "updated_at")
	ib.Values(id, req.Email, req.FirstName, req.LastName, req.DOB, 1, false, models.TestScores{}, now, now)

	query, args := ib.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, httperror.NewHTTPError(http.StatusConflict, "A profile with this email already exists.")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create profile")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create profile")
	}

	return r.Get(ctx, id)
}

// Get retrieves a profile by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.Get")
	defer span.End()

	profile, err := r.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "profile %s not found", id)
	}
	return profile, nil
}

// Find retrieves a profile by ID, returning nil when none exists
func (r *Repository) Find(ctx context.Context, id string) (*models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.Find")
	defer span.End()

	sb := selectProfiles()
	sb.Where(sb.Equal("id", id))

	return r.getOne(ctx, sb, "id", id)
}

// FindForUpdate is Find with a row lock held until the surrounding
// transaction ends
func (r *Repository) FindForUpdate(ctx context.Context, id string) (*models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.FindForUpdate")
	defer span.End()

	sb := selectProfiles()
	sb.Where(sb.Equal("id", id))
	sb.ForUpdate()

	return r.getOne(ctx, sb, "id", id)
}

// GetByEmail retrieves a profile by email, returning nil when none exists
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.GetByEmail")
	defer span.End()

	sb := selectProfiles()
	sb.Where(sb.Equal("email", email))

	return r.getOne(ctx, sb, "email", email)
}

func (r *Repository) getOne(ctx context.Context, sb *sqlbuilder.SelectBuilder, field, value string) (*models.Profile, error) {
	query, args := sb.Build()
	var profile models.Profile
	if err := r.db.Conn(ctx).GetContext(ctx, &profile, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField(field, value).Error("Failed to get profile")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get profile")
	}
	return &profile, nil
}

// Upsert writes the set fields of update, creating the profile if it does
// not exist. Fields left nil keep their stored values.
func (r *Repository) Upsert(ctx context.Context, id string, update *models.ProfileUpdate) (*models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.Upsert")
	defer span.End()

	columns := update.Columns()
	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)

	now := time.Now().UTC()
	cols := append([]string{"id", "created_at", "updated_at"}, names...)
	values := []any{id, now, now}
	for _, name := range names {
		values = append(values, columns[name])
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("profiles")
	ib.Cols(cols...)
	ib.Values(values...)

	query, args := ib.Build()
	query += " ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at"
	for _, name := range names {
		query += ", " + name + " = EXCLUDED." + name
	}

	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, httperror.NewHTTPError(http.StatusConflict, "A profile with this email already exists.")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"profile_id": id,
			"fields":     names,
		}).Error("Failed to upsert profile")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to save profile")
	}

	return r.Get(ctx, id)
}

// MarkComplete flags the profile complete at the given time
func (r *Repository) MarkComplete(ctx context.Context, id string, at time.Time) (*models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.MarkComplete")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("profiles")
	ub.Set(
		ub.Assign("is_complete", true),
		ub.Assign("completed_at", at),
		ub.Assign("updated_at", at),
	)
	ub.Where(ub.Equal("id", id))

	if err := r.execOne(ctx, ub, id, "failed to complete profile"); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// UpdateTestScores replaces the stored test_scores document
func (r *Repository) UpdateTestScores(ctx context.Context, id string, scores models.TestScores) error {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.UpdateTestScores")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("profiles")
	ub.Set(
		ub.Assign("test_scores", scores),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	return r.execOne(ctx, ub, id, "failed to save test scores")
}

// UpdateEmbedding stores a rebuilt embedding
func (r *Repository) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.UpdateEmbedding")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("profiles")
	ub.Set(
		ub.Assign("embedding", database.Vector(embedding)),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	return r.execOne(ctx, ub, id, "failed to save embedding")
}

func (r *Repository) execOne(ctx context.Context, ub *sqlbuilder.UpdateBuilder, id, failure string) error {
	query, args := ub.Build()
	res, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("profile_id", id).Error("Failed to update profile")
		return httperror.NewHTTPError(http.StatusInternalServerError, failure)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "profile %s not found", id)
	}
	return nil
}

// ListEligibleCandidateIDs returns the profiles that pass the reciprocal
// preference filter for user, excluding user
func (r *Repository) ListEligibleCandidateIDs(ctx context.Context, user *models.Profile) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.ListEligibleCandidateIDs")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id")
	sb.From("profiles")

	where := []string{sb.NotEqual("id", user.ID)}

	if user.Preference != nil {
		if gender, ok := user.Preference.PreferredGender(); ok {
			where = append(where, sb.Equal("gender", string(gender)))
		}
	}

	accepted := []string{sb.Equal("preference", string(models.PreferenceBoth))}
	if user.Gender != nil {
		if pref, ok := models.PreferenceFor(*user.Gender); ok {
			accepted = append(accepted, sb.Equal("preference", string(pref)))
		}
	}
	where = append(where, sb.Or(accepted...))

	sb.Where(where...)
	sb.OrderBy("id")

	query, args := sb.Build()
	var ids []string
	if err := r.db.Conn(ctx).SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("profile_id", user.ID).Error("Failed to list eligible candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list eligible candidates")
	}

	return ids, nil
}
