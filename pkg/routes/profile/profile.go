package profile

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	profilesvc "github.com/Ramsey-B/clover/internal/services/profile"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/utils"
)

type ProfileService interface {
	Create(ctx context.Context, req models.CreateProfileRequest) (*models.Profile, error)
	Get(ctx context.Context, id string) (*models.Profile, error)
	Update(ctx context.Context, id string, update *models.ProfileUpdate) (*profilesvc.SaveResult, error)
	Complete(ctx context.Context, id string) (*profilesvc.SaveResult, error)
	RebuildEmbedding(ctx context.Context, id, trigger string) (*models.Profile, error)
}

// Handler serves the profile signup and edit endpoints
type Handler struct {
	service ProfileService
}

func NewHandler(service ProfileService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	profiles := g.Group("/profiles")
	profiles.POST("", h.Create)
	profiles.GET("/:id", h.Get)
	profiles.PATCH("/:id", h.Update)
	profiles.POST("/:id/complete", h.Complete)
	profiles.POST("/:id/embedding", h.RebuildEmbedding)
}

// Create handles POST /profiles
func (h *Handler) Create(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "profile.Create")
	defer span.End()

	req, err := utils.BindRequest[models.CreateProfileRequest](c)
	if err != nil {
		return err
	}

	p, err := h.service.Create(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, p)
}

// Get handles GET /profiles/:id
func (h *Handler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "profile.Get")
	defer span.End()

	id, err := utils.PathUUID(c, "id")
	if err != nil {
		return err
	}
	ctx = appctx.SetProfileID(ctx, id)

	p, err := h.service.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, p)
}

// Update handles PATCH /profiles/:id. Only the fields present in the body
// are written.
func (h *Handler) Update(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "profile.Update")
	defer span.End()

	id, err := utils.PathUUID(c, "id")
	if err != nil {
		return err
	}
	ctx = appctx.SetProfileID(ctx, id)

	update, err := utils.BindRequest[models.ProfileUpdate](c)
	if err != nil {
		return err
	}

	result, err := h.service.Update(ctx, id, &update)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Complete handles POST /profiles/:id/complete
func (h *Handler) Complete(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "profile.Complete")
	defer span.End()

	id, err := utils.PathUUID(c, "id")
	if err != nil {
		return err
	}
	ctx = appctx.SetProfileID(ctx, id)

	result, err := h.service.Complete(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// RebuildEmbedding handles POST /profiles/:id/embedding, retrying only the
// embedding phase of an earlier save.
func (h *Handler) RebuildEmbedding(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "profile.RebuildEmbedding")
	defer span.End()

	id, err := utils.PathUUID(c, "id")
	if err != nil {
		return err
	}
	ctx = appctx.SetProfileID(ctx, id)

	p, err := h.service.RebuildEmbedding(ctx, id, profilesvc.TriggerManual)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, profilesvc.SaveResult{Profile: p, ProfileSaved: true, EmbeddingRebuilt: true})
}
