package questionnaire

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	questionnairesvc "github.com/Ramsey-B/clover/internal/services/questionnaire"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/models"
)

const userID = "7f1e2d3c-4b5a-4968-8776-655443322110"

type fakeService struct {
	submitted *models.QuestionnaireSubmission
}

func (f *fakeService) List(context.Context) ([]models.Questionnaire, error) {
	return []models.Questionnaire{{ID: "a", Namespace: "hexaco", Name: "HEXACO-60"}}, nil
}

func (f *fakeService) Get(_ context.Context, id string) (*models.Questionnaire, error) {
	return nil, httperror.NewHTTPError(http.StatusNotFound, "questionnaire not found")
}

func (f *fakeService) Submit(_ context.Context, sub models.QuestionnaireSubmission) (*questionnairesvc.SubmitResult, error) {
	f.submitted = &sub
	if sub.Questionnaire == "enneagram" {
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, "no scoring logic implemented")
	}
	return &questionnairesvc.SubmitResult{
		Questionnaire:    sub.Questionnaire,
		Scores:           &models.MBTIScores{Type: "ESTJ"},
		EmbeddingRebuilt: true,
	}, nil
}

func newServer(svc QuestionnaireService) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))
	return e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Submit(t *testing.T) {
	svc := &fakeService{}
	rec := do(newServer(svc), http.MethodPost, "/api/v1/questionnaires/submit",
		`{"user_id":"`+userID+`","questionnaire":"mbti","responses":[0,0,0]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]any{"MBTI Type": "ESTJ"}, body["scores"])
	assert.Equal(t, []int{0, 0, 0}, svc.submitted.Responses)
}

func TestHandler_SubmitRejected(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "missing user", body: `{"questionnaire":"mbti","responses":[1]}`, status: http.StatusBadRequest},
		{name: "no responses", body: `{"user_id":"` + userID + `","questionnaire":"mbti","responses":[]}`, status: http.StatusBadRequest},
		{name: "unknown questionnaire", body: `{"user_id":"` + userID + `","questionnaire":"enneagram","responses":[1]}`, status: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newServer(&fakeService{}), http.MethodPost, "/api/v1/questionnaires/submit", tt.body)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHandler_ListAndGet(t *testing.T) {
	e := newServer(&fakeService{})

	rec := do(e, http.MethodGet, "/api/v1/questionnaires", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "HEXACO-60")

	rec = do(e, http.MethodGet, "/api/v1/questionnaires/"+userID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
