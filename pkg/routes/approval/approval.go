package approval

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

// Workflow is the merge approval workflow the handlers drive.
type Workflow interface {
	RequestMerge(ctx context.Context, orgID, sourceID, targetID, requestedBy string) (*models.ApprovalRequest, error)
	ListApprovals(ctx context.Context, orgID string, status *models.ApprovalStatus) ([]models.ApprovalRequest, error)
	Approve(ctx context.Context, orgID, requestID, reviewer string, notes *string) (*models.ApprovalRequest, error)
	Reject(ctx context.Context, orgID, requestID, reviewer string, notes *string) (*models.ApprovalRequest, error)
}

// Register registers approval routes under /approvals
func Register(g *echo.Group) {
	g.POST("/merge", RequestMerge)
	g.GET("", List)
	g.POST("/:id/approve", Approve)
	g.POST("/:id/reject", Reject)
}

func RequestMerge(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "approval_handler.RequestMerge")
	defer span.End()

	orgID, err := request.Organization(ctx)
	if err != nil {
		return err
	}
	req, err := request.Bind[models.MergeRequest](c)
	if err != nil {
		return err
	}

	ctx, workflow, err := ectoinject.GetContext[Workflow](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	created, err := workflow.RequestMerge(ctx, orgID, req.SourceAccountID, req.TargetAccountID, request.User(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, created)
}

func List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "approval_handler.List")
	defer span.End()

	orgID, err := request.Organization(ctx)
	if err != nil {
		return err
	}

	var status *models.ApprovalStatus
	if raw := c.QueryParam("status"); raw != "" {
		s := models.ApprovalStatus(raw)
		switch s {
		case models.ApprovalStatusPending, models.ApprovalStatusApproved, models.ApprovalStatusRejected:
			status = &s
		default:
			return httperror.NewHTTPError(http.StatusBadRequest, "status must be PENDING, APPROVED or REJECTED")
		}
	}

	ctx, workflow, err := ectoinject.GetContext[Workflow](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	requests, err := workflow.ListApprovals(ctx, orgID, status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, requests)
}

func Approve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "approval_handler.Approve")
	defer span.End()

	return review(c, ctx, Workflow.Approve)
}

func Reject(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "approval_handler.Reject")
	defer span.End()

	return review(c, ctx, Workflow.Reject)
}

type reviewFunc func(w Workflow, ctx context.Context, orgID, requestID, reviewer string, notes *string) (*models.ApprovalRequest, error)

func review(c echo.Context, ctx context.Context, fn reviewFunc) error {
	orgID, err := request.Organization(ctx)
	if err != nil {
		return err
	}
	req, err := request.Bind[models.ReviewApprovalRequest](c)
	if err != nil {
		return err
	}

	ctx, workflow, err := ectoinject.GetContext[Workflow](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	reviewed, err := fn(workflow, ctx, orgID, c.Param("id"), request.User(ctx), req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reviewed)
}
