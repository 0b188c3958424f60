package match

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/utils"
)

type Runner interface {
	Run(ctx context.Context, userID string, limit int) (*matching.Result, error)
}

type MatchLister interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Match, error)
}

type Handler struct {
	runner  Runner
	matches MatchLister
}

func NewHandler(runner Runner, matches MatchLister) *Handler {
	return &Handler{runner: runner, matches: matches}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	matches := g.Group("/matches")
	matches.POST("/:user_id/run", h.Run)
	matches.GET("/:user_id", h.List)
}

func queryLimit(c echo.Context) (int, error) {
	limit := 0
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
	}
	if limit < 0 || limit > matching.MaxLimit {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "limit must be between 0 and %d", matching.MaxLimit)
	}
	return limit, nil
}

// Run handles POST /matches/:user_id/run?limit=N
func (h *Handler) Run(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "match.Run")
	defer span.End()

	userID, err := utils.PathUUID(c, "user_id")
	if err != nil {
		return err
	}
	ctx = appctx.SetProfileID(ctx, userID)

	limit, err := queryLimit(c)
	if err != nil {
		return err
	}

	result, err := h.runner.Run(ctx, userID, limit)
	if err != nil {
		return runError(err)
	}

	return c.JSON(http.StatusOK, result)
}

// List handles GET /matches/:user_id, best scores first
func (h *Handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "match.List")
	defer span.End()

	userID, err := utils.PathUUID(c, "user_id")
	if err != nil {
		return err
	}
	ctx = appctx.SetProfileID(ctx, userID)

	limit, err := queryLimit(c)
	if err != nil {
		return err
	}

	matches, err := h.matches.ListByUser(ctx, userID, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, matches)
}

func runError(err error) error {
	switch {
	case errors.Is(err, matching.ErrProfileNotFound):
		return httperror.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, matching.ErrPreferenceNotSet), errors.Is(err, matching.ErrEmbeddingNotBuilt):
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return err
	}
}
