package audiosummary

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tshla/medical-core/internal/platform/auth"
	"github.com/tshla/medical-core/internal/platform/softdelete"
	"github.com/tshla/medical-core/internal/record"
	"github.com/tshla/medical-core/pkg/pagination"
)

// Handler exposes the audio summary API.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/audio-summaries", h.Create)
	api.GET("/audio-summaries/:id", h.Get)
	api.PATCH("/audio-summaries/:id", h.Update)
	api.DELETE("/audio-summaries/:id", h.Delete)
	api.GET("/audio-summaries/deleted", h.ListDeleted)
	api.GET("/patients/:patientID/audio-summaries", h.ListByPatient)
}

func (h *Handler) Create(c echo.Context) error {
	var input CreateInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	a, err := h.service.Create(ctx, auth.ActorFromContext(ctx), input)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid audio summary id")
	}

	ctx := c.Request().Context()
	a, err := h.service.Get(ctx, auth.ActorFromContext(ctx), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid audio summary id")
	}

	var input UpdateInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	a, err := h.service.Update(ctx, auth.ActorFromContext(ctx), id, input)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type deleteRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid audio summary id")
	}

	var req deleteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	reason, err := softdelete.ParseReason(req.Reason)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	if err := h.service.Delete(ctx, auth.ActorFromContext(ctx), id, reason); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListDeleted(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)

	deleted, total, err := h.service.ListDeleted(ctx, auth.ActorFromContext(ctx), pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(deleted, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	ctx := c.Request().Context()
	pg := pagination.FromContext(c)

	summaries, total, err := h.service.ListByPatient(ctx, auth.ActorFromContext(ctx), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(summaries, total, pg.Limit, pg.Offset))
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, softdelete.ErrInvalidReason):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, softdelete.ErrAlreadyDeleted):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, record.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	case errors.Is(err, record.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "audio summary not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
