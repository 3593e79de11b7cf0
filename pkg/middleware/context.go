package middleware

import (
	"github.com/Ramsey-B/willow/pkg/context"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	// HeaderUserID carries the acting identity when token authentication is disabled
	HeaderUserID = "X-User-ID"
	// HeaderUserName carries the identity's display name when token authentication is disabled
	HeaderUserName = "X-User-Name"
	// HeaderUserEmail carries the identity's email when token authentication is disabled
	HeaderUserEmail = "X-User-Email"
)

// Context seeds the request context with request metadata. trustHeaders controls whether the
// identity headers are honored; with authentication enabled the token is the only source.
func Context(trustHeaders bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := req.Context()
			ctx = context.SetRequestID(ctx, requestID)
			ctx = context.SetMethod(ctx, req.Method)
			ctx = context.SetRoute(ctx, req.URL.Path)
			ctx = context.SetRemoteIP(ctx, c.RealIP())

			if trustHeaders {
				ctx = context.SetUserID(ctx, req.Header.Get(HeaderUserID))
				ctx = context.SetUserName(ctx, req.Header.Get(HeaderUserName))
				ctx = context.SetUserEmail(ctx, req.Header.Get(HeaderUserEmail))
			}

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
