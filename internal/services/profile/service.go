package profile

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Rebuild triggers, used as the metric label and event field
const (
	TriggerProfileUpdate = "profile_update"
	TriggerQuestionnaire = "questionnaire"
	TriggerManual        = "manual"
)

type ProfileRepository interface {
	Create(ctx context.Context, req models.CreateProfileRequest) (*models.Profile, error)
	Get(ctx context.Context, id string) (*models.Profile, error)
	FindForUpdate(ctx context.Context, id string) (*models.Profile, error)
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
	Upsert(ctx context.Context, id string, update *models.ProfileUpdate) (*models.Profile, error)
	MarkComplete(ctx context.Context, id string, at time.Time) (*models.Profile, error)
	UpdateTestScores(ctx context.Context, id string, scores models.TestScores) error
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error
}

type TxProvider interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error)
}

type EmbeddingBuilder interface {
	Build(profile *models.Profile) []float32
	Dimension() int
}

type Emitter interface {
	EmitEmbeddingRebuilt(ctx context.Context, data events.EmbeddingRebuiltData) error
}

// SaveResult reports both phases of a profile write. ProfileSaved is true
// whenever the result is returned without error; EmbeddingRebuilt is false
// when no rebuild was needed or the rebuild failed, and EmbeddingStale
// separates the second case.
type SaveResult struct {
	Profile          *models.Profile `json:"profile"`
	ProfileSaved     bool            `json:"profile_saved"`
	EmbeddingRebuilt bool            `json:"embedding_rebuilt"`
	EmbeddingStale   bool            `json:"embedding_stale,omitempty"`
}

type Service struct {
	repo    ProfileRepository
	tx      TxProvider
	builder EmbeddingBuilder
	locker  redis.KeyLocker
	emitter Emitter
	logger  ectologger.Logger
	now     func() time.Time
}

func NewService(repo ProfileRepository, tx TxProvider, builder EmbeddingBuilder, locker redis.KeyLocker, emitter Emitter, logger ectologger.Logger) *Service {
	if locker == nil {
		locker = redis.NoopLocker{}
	}
	if emitter == nil {
		emitter = events.Noop{}
	}
	return &Service{
		repo:    repo,
		tx:      tx,
		builder: builder,
		locker:  locker,
		emitter: emitter,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create starts a signup. A second signup with the same email is a conflict.
func (s *Service) Create(ctx context.Context, req models.CreateProfileRequest) (*models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "profile.Service.Create")
	defer span.End()

	existing, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil && httperror.GetStatusCode(err) != http.StatusNotFound {
		return nil, err
	}
	if existing != nil {
		return nil, httperror.NewHTTPError(http.StatusConflict, "email is already registered")
	}

	p, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithField("profile_id", p.ID).Info("profile created")
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "profile.Service.Get")
	defer span.End()

	return s.repo.Get(ctx, id)
}

// Update writes the set fields and rebuilds the embedding when an embeddable
// attribute changed. A failed rebuild does not fail the update.
func (s *Service) Update(ctx context.Context, id string, update *models.ProfileUpdate) (*SaveResult, error) {
	ctx, span := tracing.StartSpan(ctx, "profile.Service.Update")
	defer span.End()

	if update == nil || update.IsEmpty() {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "no profile fields to update")
	}

	p, err := s.repo.Upsert(ctx, id, update)
	if err != nil {
		return nil, err
	}

	result := &SaveResult{Profile: p, ProfileSaved: true}
	if !update.AffectsEmbedding() {
		return result, nil
	}

	return s.finishRebuild(ctx, result, TriggerProfileUpdate), nil
}

// Complete marks the signup finished and rebuilds from the final state
func (s *Service) Complete(ctx context.Context, id string) (*SaveResult, error) {
	ctx, span := tracing.StartSpan(ctx, "profile.Service.Complete")
	defer span.End()

	p, err := s.repo.MarkComplete(ctx, id, s.now())
	if err != nil {
		return nil, err
	}

	return s.finishRebuild(ctx, &SaveResult{Profile: p, ProfileSaved: true}, TriggerProfileUpdate), nil
}

// ApplyScores merges one questionnaire's scores into the stored test scores
// and rebuilds the embedding. Other categories are kept.
func (s *Service) ApplyScores(ctx context.Context, id string, score models.ScoreMap) (*SaveResult, error) {
	ctx, span := tracing.StartSpan(ctx, "profile.Service.ApplyScores")
	defer span.End()

	var saved *models.Profile
	err := s.locker.WithLock(ctx, lockKey(id), func(ctx context.Context) error {
		var err error
		saved, err = s.mergeScores(ctx, id, score)
		return err
	})
	if err != nil {
		return nil, lockError(err)
	}

	return s.finishRebuild(ctx, &SaveResult{Profile: saved, ProfileSaved: true}, TriggerQuestionnaire), nil
}

func (s *Service) mergeScores(ctx context.Context, id string, score models.ScoreMap) (p *models.Profile, err error) {
	ctx, tx, err := s.tx.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to save test scores")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	p, err = s.repo.FindForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "profile %s not found", id)
	}

	p.TestScores.Merge(score)
	if err = s.repo.UpdateTestScores(ctx, id, p.TestScores); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to save test scores")
	}
	return p, nil
}

// RebuildEmbedding recomputes the embedding from the freshly read profile
// and writes it back. Rebuilds for one user are serialized by the locker.
func (s *Service) RebuildEmbedding(ctx context.Context, id, trigger string) (*models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "profile.Service.RebuildEmbedding")
	defer span.End()

	var rebuilt *models.Profile
	err := s.locker.WithLock(ctx, lockKey(id), func(ctx context.Context) error {
		p, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}

		vec := s.builder.Build(p)
		if err := s.repo.UpdateEmbedding(ctx, id, vec); err != nil {
			return err
		}

		p.Embedding = vec
		rebuilt = p
		return nil
	})
	if err != nil {
		metrics.EmbeddingRebuildsTotal.WithLabelValues(trigger, "error").Inc()
		tracing.RecordError(span, err)
		return nil, lockError(err)
	}
	metrics.EmbeddingRebuildsTotal.WithLabelValues(trigger, "success").Inc()

	if err := s.emitter.EmitEmbeddingRebuilt(ctx, events.EmbeddingRebuiltData{
		UserID:    id,
		Dimension: s.builder.Dimension(),
		Trigger:   trigger,
	}); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("profile_id", id).Warn("embedding rebuilt event not sent")
	}

	return rebuilt, nil
}

func (s *Service) finishRebuild(ctx context.Context, result *SaveResult, trigger string) *SaveResult {
	rebuilt, err := s.RebuildEmbedding(ctx, result.Profile.ID, trigger)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"profile_id": result.Profile.ID,
			"trigger":    trigger,
		}).Error("profile saved but embedding rebuild failed")
		result.EmbeddingStale = true
		return result
	}

	result.Profile = rebuilt
	result.EmbeddingRebuilt = true
	return result
}

// lockError reports contention on a profile's lock as a conflict
func lockError(err error) error {
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return httperror.NewHTTPError(http.StatusConflict, "profile update already in progress")
	}
	return err
}

func lockKey(id string) string {
	return "embedding:" + id
}
