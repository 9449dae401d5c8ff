package echoapi

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
)

// elevatedMiddleware restricts a route to admins & instructors.
func elevatedMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if !principal(ctx).Elevated {
			return errHTTPForbidden
		}
		return next(ctx)
	}
}

// withMiddleware returns a new slice holding mws then more.
func withMiddleware(mws []echo.MiddlewareFunc, more ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(mws)+len(more))
	out = append(out, mws...)
	return append(out, more...)
}

// timeoutMiddleware bounds the context of each request.
func timeoutMiddleware(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if timeout <= 0 {
				return next(ctx)
			}
			c, cancel := context.WithTimeout(ctx.Request().Context(), timeout)
			defer cancel()
			ctx.SetRequest(ctx.Request().WithContext(c))
			return next(ctx)
		}
	}
}
