package integration

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/routes/request"
	"github.com/Ramsey-B/fern/pkg/syncer"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type Syncer interface {
	SyncConfig(ctx context.Context, orgID, configID string) (*syncer.ConfigResult, error)
}

// Register registers integration routes under /integrations
func Register(g *echo.Group) {
	g.POST("/:id/sync", Sync)
}

// Sync runs one integration now. A sync that fails upstream still returns 200
// with status ERROR; the failure is recorded on the integration.
func Sync(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "integration_handler.Sync")
	defer span.End()

	orgID, err := request.Organization(ctx)
	if err != nil {
		return err
	}

	ctx, s, err := ectoinject.GetContext[Syncer](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := s.SyncConfig(ctx, orgID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
