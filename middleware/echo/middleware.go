// Package echomw adapts request validation to echo.
package echomw

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/reoring/skemac"
	"github.com/reoring/skemac/middleware"
)

// ValidateJSON validates the request body with v. Invalid bodies get
// opt.Status (422 when zero) and the issues payload; valid ones continue with
// the decoded instance stored in the request context.
func ValidateJSON(v *skemac.Validator, opt middleware.Options) echo.MiddlewareFunc {
	if opt.Status == 0 {
		opt.Status = http.StatusUnprocessableEntity
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res, inst, err := middleware.Check(req, v, opt)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			if !res.Valid {
				return c.JSON(opt.Status, middleware.ErrorPayload(res.Errors))
			}
			c.SetRequest(req.WithContext(middleware.ContextWithInstance(req.Context(), inst)))
			return next(c)
		}
	}
}

// GetInstance fetches the validated instance from c.
func GetInstance(c echo.Context) (any, bool) {
	return middleware.InstanceFromContext(c.Request().Context())
}
