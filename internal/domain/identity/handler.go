package identity

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tshla/medical-core/internal/platform/auth"
	"github.com/tshla/medical-core/internal/record"
	"github.com/tshla/medical-core/pkg/pagination"
)

// Handler exposes the patient identity API.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients", h.Onboard)
	api.GET("/patients", h.List)
	api.GET("/patients/:id", h.Get)
	api.GET("/patients/by-patient-id/:patientID", h.GetByPatientID)
	api.PATCH("/patients/:id", h.Update)
	api.POST("/patients/:id/portal-id/reset", h.ResetPortalID)

	// Pre-login existence check, open to anonymous callers by policy.
	api.GET("/portal/lookup/:portalID", h.PortalLookup)
}

func (h *Handler) Onboard(c echo.Context) error {
	var input OnboardInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	p, err := h.service.Onboard(ctx, auth.ActorFromContext(ctx), input)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)

	patients, total, err := h.service.List(ctx, auth.ActorFromContext(ctx), pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	ctx := c.Request().Context()
	p, err := h.service.Get(ctx, auth.ActorFromContext(ctx), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetByPatientID(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := h.service.GetByPatientID(ctx, auth.ActorFromContext(ctx), c.Param("patientID"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// updateRequest accepts the mutable fields and, separately, traps the
// write-once fields so attempts to change them fail loudly instead of
// being silently dropped.
type updateRequest struct {
	UpdateInput
	InternalID *string `json:"internal_id"`
	PatientID  *string `json:"patient_id"`
	PortalID   *string `json:"portal_id"`
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.InternalID != nil || req.PatientID != nil || req.PortalID != nil {
		return toHTTPError(ErrImmutableFieldViolation)
	}

	ctx := c.Request().Context()
	p, err := h.service.UpdateDetails(ctx, auth.ActorFromContext(ctx), id, req.UpdateInput)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ResetPortalID(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	ctx := c.Request().Context()
	p, err := h.service.ResetPortalID(ctx, auth.ActorFromContext(ctx), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) PortalLookup(c echo.Context) error {
	ctx := c.Request().Context()
	result, err := h.service.PortalLookup(ctx, auth.ActorFromContext(ctx), c.Param("portalID"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// toHTTPError maps domain errors to transport status codes. Authorization
// failures always map to the same generic 403.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidIdentifierFormat),
		errors.Is(err, ErrImmutableFieldViolation),
		errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrExhaustedKeyspace):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, record.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	case errors.Is(err, record.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
