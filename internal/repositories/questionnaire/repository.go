package questionnaire

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
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

// Repository handles questionnaire metadata and the raw response archive
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new questionnaire repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// List returns all questionnaires without their questions
func (r *Repository) List(ctx context.Context) ([]models.Questionnaire, error) {
	ctx, span := tracing.StartSpan(ctx, "questionnaire.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "namespace", "name")
	sb.From("questionnaires")
	sb.OrderBy("name")

	query, args := sb.Build()
	questionnaires := []models.Questionnaire{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &questionnaires, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list questionnaires")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list questionnaires")
	}

	return questionnaires, nil
}

// Get returns a questionnaire with its questions and options in position order
func (r *Repository) Get(ctx context.Context, id string) (*models.Questionnaire, error) {
	ctx, span := tracing.StartSpan(ctx, "questionnaire.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "namespace", "name")
	sb.From("questionnaires")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var q models.Questionnaire
	if err := r.db.Conn(ctx).GetContext(ctx, &q, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "questionnaire %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("questionnaire_id", id).Error("Failed to get questionnaire")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get questionnaire")
	}

	questions, err := r.listQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	q.Questions = questions

	return &q, nil
}

func (r *Repository) listQuestions(ctx context.Context, questionnaireID string) ([]models.Question, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "questionnaire_id", "question_text", "position")
	sb.From("questions")
	sb.Where(sb.Equal("questionnaire_id", questionnaireID))
	sb.OrderBy("position")

	query, args := sb.Build()
	questions := []models.Question{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &questions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("questionnaire_id", questionnaireID).Error("Failed to list questions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list questions")
	}
	if len(questions) == 0 {
		return questions, nil
	}

	ids := make([]string, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}

	ob := sqlbuilder.PostgreSQL.NewSelectBuilder()
	ob.Select("id", "question_id", "option_text", "position")
	ob.From("options")
	ob.Where("question_id = ANY(" + ob.Var(pq.Array(ids)) + "::uuid[])")
	ob.OrderBy("question_id", "position")

	query, args = ob.Build()
	var options []models.Option
	if err := r.db.Conn(ctx).SelectContext(ctx, &options, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("questionnaire_id", questionnaireID).Error("Failed to list options")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list options")
	}

	byQuestion := make(map[string][]models.Option, len(questions))
	for _, o := range options {
		byQuestion[o.QuestionID] = append(byQuestion[o.QuestionID], o)
	}
	for i := range questions {
		questions[i].Options = byQuestion[questions[i].ID]
		if questions[i].Options == nil {
			questions[i].Options = []models.Option{}
		}
	}

	return questions, nil
}

// ArchiveResponses stores a raw submission before it is scored
func (r *Repository) ArchiveResponses(ctx context.Context, userID, questionnaire string, responses []int) (*models.QuestionnaireResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "questionnaire.Repository.ArchiveResponses")
	defer span.End()

	record := &models.QuestionnaireResponse{
		ID:            uuid.New().String(),
		UserID:        userID,
		Questionnaire: questionnaire,
		Responses:     responses,
		CreatedAt:     time.Now().UTC(),
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("questionnaire_responses")
	ib.Cols("id", "user_id", "questionnaire", "responses", "created_at")
	ib.Values(record.ID, record.UserID, record.Questionnaire, database.NewJSONB(responses), record.CreatedAt)

	query, args := ib.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"user_id":       userID,
			"questionnaire": questionnaire,
		}).Error("Failed to archive questionnaire responses")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to save questionnaire responses")
	}

	return record, nil
}
