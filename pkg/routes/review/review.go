package review

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	svc "github.com/Ramsey-B/fern/pkg/review"
	"github.com/Ramsey-B/fern/pkg/routes/request"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Queue is the resolution queue the handlers drive.
type Queue interface {
	List(ctx context.Context, orgID string, params models.ReviewListParams) (*models.ReviewPage, error)
	Stats(ctx context.Context, orgID string) (*models.ReviewStats, error)
	Suggestions(ctx context.Context, orgID, callID string) ([]models.Suggestion, error)
	ResolveCall(ctx context.Context, orgID, callID, accountID string) (*svc.ResolveResult, error)
	BulkResolve(ctx context.Context, orgID string, callIDs []string, accountID string) int
	DismissCalls(ctx context.Context, orgID string, callIDs []string) (int, error)
	CreateAccountFromCall(ctx context.Context, orgID, callID string, input svc.CreateAccountInput) (*svc.CreateAccountResult, error)
}

// Register registers review routes under /review
func Register(g *echo.Group) {
	g.GET("/calls", List)
	g.GET("/stats", Stats)
	g.GET("/calls/:id/suggestions", Suggestions)
	g.POST("/calls/:id/resolve", Resolve)
	g.POST("/calls/bulk-resolve", BulkResolve)
	g.POST("/calls/dismiss", Dismiss)
	g.POST("/calls/:id/create-account", CreateAccount)
}

func List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "review_handler.List")
	defer span.End()

	orgID, err := request.Organization(ctx)
	if err != nil {
		return err
	}
	params, err := request.Bind[models.ReviewListParams](c)
	if err != nil {
		return err
	}

	ctx, queue, err := ectoinject.GetContext[Queue](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	page, err := queue.List(ctx, orgID, params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func Stats(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "review_handler.Stats")
	defer span.End()

	orgID, err := request.Organization(ctx)
	if err != nil {
		return err
	}
	ctx, queue, err := ectoinject.GetContext[Queue](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	stats, err := queue.Stats(ctx, orgID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func Suggestions(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "review_handler.Suggestions")
	defer span.End()

	orgID, err := request.Organization(ctx)
	if err != nil {
		return err
	}
	ctx, queue, err := ectoinject.GetContext[Queue](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	suggestions, err := queue.Suggestions(ctx, orgID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, suggestions)
}

func Resolve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "review_handler.Resolve")
	defer span.End()

	orgID, err := request.Organization(ctx)
	if err != nil {
		return err
	}
	req, err := request.Bind[models.ResolveCallRequest](c)
	if err != nil {
		return err
	}

	ctx, queue, err := ectoinject.GetContext[Queue](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := queue.ResolveCall(ctx, orgID, c.Param("id"), req.AccountID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func BulkResolve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "review_handler.BulkResolve")
	defer span.End()

	orgID, err := request.Organization(ctx)
	if err != nil {
		return err
	}
	req, err := request.Bind[models.BulkResolveRequest](c)
	if err != nil {
		return err
	}

	ctx, queue, err := ectoinject.GetContext[Queue](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	count := queue.BulkResolve(ctx, orgID, req.CallIDs, req.AccountID)
	return c.JSON(http.StatusOK, models.CountResponse{Count: count})
}

func Dismiss(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "review_handler.Dismiss")
	defer span.End()

	orgID, err := request.Organization(ctx)
	if err != nil {
		return err
	}
	req, err := request.Bind[models.DismissRequest](c)
	if err != nil {
		return err
	}

	ctx, queue, err := ectoinject.GetContext[Queue](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	count, err := queue.DismissCalls(ctx, orgID, req.CallIDs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.CountResponse{Count: count})
}

func CreateAccount(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "review_handler.CreateAccount")
	defer span.End()

	orgID, err := request.Organization(ctx)
	if err != nil {
		return err
	}
	req, err := request.Bind[svc.CreateAccountInput](c)
	if err != nil {
		return err
	}

	ctx, queue, err := ectoinject.GetContext[Queue](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := queue.CreateAccountFromCall(ctx, orgID, c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}
