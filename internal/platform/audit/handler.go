package audit

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tshla/medical-core/internal/platform/auth"
	"github.com/tshla/medical-core/internal/platform/softdelete"
	"github.com/tshla/medical-core/pkg/pagination"
)

// Lister reads back access-log entries for the administrative view.
type Lister interface {
	List(ctx context.Context, resource string, limit, offset int) ([]*Entry, int, error)
}

// Handler serves the administrative audit views. These routes are mounted
// behind a staff role gate and are the only paths that expose deleted
// records.
type Handler struct {
	logs    Lister
	ledgers map[string]*softdelete.Ledger
}

func NewHandler(logs Lister, ledgers map[string]*softdelete.Ledger) *Handler {
	return &Handler{logs: logs, ledgers: ledgers}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/audit", auth.RequireRole(auth.RoleStaff))
	g.GET("/access-logs", h.ListAccessLogs)
	g.GET("/deletions/:resource", h.ListDeletions)
}

func (h *Handler) ListAccessLogs(c echo.Context) error {
	pg := pagination.FromContext(c)
	entries, total, err := h.logs.List(c.Request().Context(), c.QueryParam("resource"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list access logs")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListDeletions(c echo.Context) error {
	ledger, ok := h.ledgers[c.Param("resource")]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown resource")
	}
	pg := pagination.FromContext(c)
	entries, total, err := ledger.ListDeleted(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list deletions")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg.Limit, pg.Offset))
}
