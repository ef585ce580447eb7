package merge

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/routes/request"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Merger is the account merge engine the handlers drive.
type Merger interface {
	Preview(ctx context.Context, orgID, sourceID, targetID string) (*models.MergePreview, error)
	Merge(ctx context.Context, orgID, sourceID, targetID string, opts models.MergeOptions) (*models.MergeRun, error)
	Undo(ctx context.Context, orgID, mergeRunID, undoneBy string) (*models.MergeRun, error)
	ListRuns(ctx context.Context, orgID string, limit int) ([]models.MergeRun, error)
}

// Register registers merge routes under /accounts
func Register(g *echo.Group) {
	g.POST("/merge/preview", Preview)
	g.POST("/merge", Merge)
	g.GET("/merge-runs", ListRuns)
	g.POST("/merge-runs/:id/undo", Undo)
}

func Preview(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "merge_handler.Preview")
	defer span.End()

	orgID, err := request.Organization(ctx)
	if err != nil {
		return err
	}
	req, err := request.Bind[models.MergeRequest](c)
	if err != nil {
		return err
	}

	ctx, merger, err := ectoinject.GetContext[Merger](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	preview, err := merger.Preview(ctx, orgID, req.SourceAccountID, req.TargetAccountID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, preview)
}

func Merge(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "merge_handler.Merge")
	defer span.End()

	orgID, err := request.Organization(ctx)
	if err != nil {
		return err
	}
	req, err := request.Bind[models.MergeRequest](c)
	if err != nil {
		return err
	}

	ctx, merger, err := ectoinject.GetContext[Merger](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	run, err := merger.Merge(ctx, orgID, req.SourceAccountID, req.TargetAccountID, models.MergeOptions{
		MergedBy: request.User(ctx),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, run)
}

func Undo(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "merge_handler.Undo")
	defer span.End()

	orgID, err := request.Organization(ctx)
	if err != nil {
		return err
	}

	ctx, merger, err := ectoinject.GetContext[Merger](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	run, err := merger.Undo(ctx, orgID, c.Param("id"), request.User(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, run)
}

func ListRuns(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "merge_handler.ListRuns")
	defer span.End()

	orgID, err := request.Organization(ctx)
	if err != nil {
		return err
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
	}

	ctx, merger, err := ectoinject.GetContext[Merger](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	runs, err := merger.ListRuns(ctx, orgID, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, runs)
}
