package questionnaire

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/services/profile"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/scoring"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type QuestionnaireRepository interface {
	List(ctx context.Context) ([]models.Questionnaire, error)
	Get(ctx context.Context, id string) (*models.Questionnaire, error)
	ArchiveResponses(ctx context.Context, userID, questionnaire string, responses []int) (*models.QuestionnaireResponse, error)
}

type ProfileFinder interface {
	Find(ctx context.Context, id string) (*models.Profile, error)
}

type Scorer interface {
	Score(category string, responses []int) (models.ScoreMap, error)
}

type ScoreApplier interface {
	ApplyScores(ctx context.Context, id string, score models.ScoreMap) (*profile.SaveResult, error)
}

// SubmitResult is returned for an accepted submission
type SubmitResult struct {
	Questionnaire    string          `json:"questionnaire"`
	ResponseID       string          `json:"response_id,omitempty"`
	Scores           models.ScoreMap `json:"scores"`
	EmbeddingRebuilt bool            `json:"embedding_rebuilt"`
}

type Service struct {
	repo     QuestionnaireRepository
	profiles ProfileFinder
	scorer   Scorer
	applier  ScoreApplier
	logger   ectologger.Logger
}

func NewService(repo QuestionnaireRepository, profiles ProfileFinder, scorer Scorer, applier ScoreApplier, logger ectologger.Logger) *Service {
	return &Service{
		repo:     repo,
		profiles: profiles,
		scorer:   scorer,
		applier:  applier,
		logger:   logger,
	}
}

func (s *Service) List(ctx context.Context) ([]models.Questionnaire, error) {
	ctx, span := tracing.StartSpan(ctx, "questionnaire.Service.List")
	defer span.End()

	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*models.Questionnaire, error) {
	ctx, span := tracing.StartSpan(ctx, "questionnaire.Service.Get")
	defer span.End()

	return s.repo.Get(ctx, id)
}

// Submit scores a submission, merges the scores into the user's profile and
// then archives the raw responses. Only applied submissions are archived.
func (s *Service) Submit(ctx context.Context, sub models.QuestionnaireSubmission) (*SubmitResult, error) {
	ctx, span := tracing.StartSpan(ctx, "questionnaire.Service.Submit")
	defer span.End()

	result, err := s.submit(ctx, sub)
	status := "success"
	if err != nil {
		status = "error"
		if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) < http.StatusInternalServerError {
			status = "rejected"
		}
	}
	metrics.QuestionnaireSubmissionsTotal.WithLabelValues(sub.Questionnaire, status).Inc()

	return result, err
}

func (s *Service) submit(ctx context.Context, sub models.QuestionnaireSubmission) (*SubmitResult, error) {
	p, err := s.profiles.Find(ctx, sub.UserID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "profile %s not found", sub.UserID)
	}

	scores, err := s.scorer.Score(sub.Questionnaire, sub.Responses)
	if err != nil {
		return nil, scoringError(err)
	}

	saved, err := s.applier.ApplyScores(ctx, sub.UserID, scores)
	if err != nil {
		return nil, err
	}

	// the merged scores are authoritative; the archive is an audit copy
	var responseID string
	archived, err := s.repo.ArchiveResponses(ctx, sub.UserID, sub.Questionnaire, sub.Responses)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"profile_id":    sub.UserID,
			"questionnaire": sub.Questionnaire,
		}).Error("scores saved but responses not archived")
	} else {
		responseID = archived.ID
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"profile_id":        sub.UserID,
		"questionnaire":     sub.Questionnaire,
		"embedding_rebuilt": saved.EmbeddingRebuilt,
	}).Info("questionnaire submitted")

	return &SubmitResult{
		Questionnaire:    sub.Questionnaire,
		ResponseID:       responseID,
		Scores:           scores,
		EmbeddingRebuilt: saved.EmbeddingRebuilt,
	}, nil
}

func scoringError(err error) error {
	var validationErr *scoring.ValidationError
	switch {
	case errors.Is(err, scoring.ErrNoScoringLogic):
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &validationErr):
		return httperror.NewHTTPError(http.StatusBadRequest, validationErr.Error())
	default:
		return httperror.WrapError(http.StatusInternalServerError, err)
	}
}
