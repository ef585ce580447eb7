package resolve

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/routes/request"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type Resolver interface {
	Resolve(ctx context.Context, orgID string, participants []models.ParticipantInput, callTitle string) (*models.Resolution, error)
}

// Register registers the ad-hoc resolution route
func Register(g *echo.Group) {
	g.POST("/resolve", Resolve)
}

// Resolve reports which account a set of participants would resolve to
// without storing anything.
func Resolve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "resolve_handler.Resolve")
	defer span.End()

	orgID, err := request.Organization(ctx)
	if err != nil {
		return err
	}
	req, err := request.Bind[models.ResolveRequest](c)
	if err != nil {
		return err
	}

	ctx, resolver, err := ectoinject.GetContext[Resolver](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	res, err := resolver.Resolve(ctx, orgID, req.Participants, req.CallTitle)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
