package middleware

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/dependencies"
)

// Container makes the injection container with the given id the active one
// for every request.
func Container(id string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx, err := dependencies.Activate(req.Context(), id)
			if err != nil {
				return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
			}
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
