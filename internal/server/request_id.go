package server

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"devotional/internal/core"
)

// RequestIDMiddleware echoes X-Request-ID back to the client, generating a
// UUID when the request has none, and stores it on the request context.
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			c.SetRequest(req.WithContext(core.WithRequestID(req.Context(), id)))
			return next(c)
		}
	}
}
