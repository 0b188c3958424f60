package questionnaire

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	questionnairesvc "github.com/Ramsey-B/clover/internal/services/questionnaire"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/utils"
)

type QuestionnaireService interface {
	List(ctx context.Context) ([]models.Questionnaire, error)
	Get(ctx context.Context, id string) (*models.Questionnaire, error)
	Submit(ctx context.Context, sub models.QuestionnaireSubmission) (*questionnairesvc.SubmitResult, error)
}

type Handler struct {
	service QuestionnaireService
}

func NewHandler(service QuestionnaireService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	questionnaires := g.Group("/questionnaires")
	questionnaires.GET("", h.List)
	questionnaires.POST("/submit", h.Submit)
	questionnaires.GET("/:id", h.Get)
}

// List handles GET /questionnaires
func (h *Handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "questionnaire.List")
	defer span.End()

	list, err := h.service.List(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, list)
}

// Get handles GET /questionnaires/:id with questions and options in order
func (h *Handler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "questionnaire.Get")
	defer span.End()

	id, err := utils.PathUUID(c, "id")
	if err != nil {
		return err
	}

	q, err := h.service.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, q)
}

// Submit handles POST /questionnaires/submit
func (h *Handler) Submit(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "questionnaire.Submit")
	defer span.End()

	sub, err := utils.BindRequest[models.QuestionnaireSubmission](c)
	if err != nil {
		return err
	}
	ctx = appctx.SetProfileID(ctx, sub.UserID)

	result, err := h.service.Submit(ctx, sub)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
