package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/tshla/medical-core/internal/platform/audit"
)

// RequestInfo stashes the caller's IP and user agent in the request
// context so access-log entries written by the services carry them.
func RequestInfo() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := audit.WithRequestInfo(req.Context(), c.RealIP(), req.UserAgent())
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
