package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// RequestTimeout puts a deadline on the request context. The handler runs on
// the request goroutine; database calls made with the context fail once the
// deadline passes, and if nothing was written yet the caller gets a 504.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err == nil || c.Response().Committed || !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return err
			}

			zerolog.Ctx(ctx).Warn().Err(err).
				Dur("timeout", timeout).
				Str("path", c.Request().URL.Path).
				Msg("request deadline exceeded")
			return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out")
		}
	}
}
