// Package request holds the binding and caller helpers shared by the route
// packages.
package request

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	fctx "github.com/Ramsey-B/fern/pkg/context"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Bind decodes the request into a T and validates it.
func Bind[T any](c echo.Context) (T, error) {
	var req T
	if err := c.Bind(&req); err != nil {
		return req, httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return req, validationError(err)
	}
	return req, nil
}

func validationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed rule '%s=%s'", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("field '%s' failed rule '%s'", fe.Field(), fe.Tag()))
	}
	return httperror.NewHTTPError(http.StatusBadRequest, strings.Join(msgs, "; "))
}

// Organization returns the caller's organization.
func Organization(ctx context.Context) (string, error) {
	orgID := fctx.GetOrganizationID(ctx)
	if orgID == "" {
		return "", httperror.NewHTTPError(http.StatusUnauthorized, "organization id is required")
	}
	return orgID, nil
}

// User returns the caller's user id, or "" for anonymous callers.
func User(ctx context.Context) string {
	return fctx.GetUserID(ctx)
}
