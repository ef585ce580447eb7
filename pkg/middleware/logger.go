package middleware

import (
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/context"
	"github.com/labstack/echo/v4"
)

func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}

			stop := time.Now()
			ctx := c.Request().Context()

			logger.WithContext(ctx).WithFields(map[string]interface{}{
				"request_id":      context.GetRequestID(ctx),
				"organization_id": context.GetOrganizationID(ctx),
				"method":          req.Method,
				"uri":             req.RequestURI,
				"status":          res.Status,
				"route":           c.Path(),
				"remote_ip":       c.RealIP(),
				"user_agent":      req.UserAgent(),
				"response_time":   stop.Sub(start),
				"request_size":    req.Header.Get(echo.HeaderContentLength),
				"response_size":   strconv.FormatInt(res.Size, 10),
			}).Info("Request")

			return nil
		}
	}
}
