package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ridKey is the echo context key the request id is stored under. Logger
// and Recovery read it back when emitting their events.
const ridKey = "request_id"

// RequestID assigns every request an id, honoring an incoming X-Request-ID
// header so ids survive proxies. The id is stored on the echo context for
// the logger and recovery middleware and echoed back in the response.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Set(ridKey, rid)
			c.Response().Header().Set(echo.HeaderXRequestID, rid)
			return next(c)
		}
	}
}

// RequestIDFrom returns the id RequestID stored for this request, or ""
// when the middleware did not run.
func RequestIDFrom(c echo.Context) string {
	rid, _ := c.Get(ridKey).(string)
	return rid
}
