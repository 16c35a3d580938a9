// Package http provides the HTTP server implementation for the agents service.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// NewServer creates and configures the HTTP server.
func NewServer(h *Handler, logger *slog.Logger, allowOrigins []string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Pre(middleware.RemoveTrailingSlash())

	// Middleware
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(cors(allowOrigins))

	h.RegisterRoutes(e)

	return e
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				level = slog.LevelError
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(context.Background(), level, "request", attrs...)
			return nil
		},
	})
}

// cors sets permissive CORS headers on every response. Preflight requests are
// answered by the OPTIONS routes so they return 200 with an empty body.
func cors(allowOrigins []string) echo.MiddlewareFunc {
	allowMethods := strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", ")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Response().Header()
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			switch {
			case len(allowOrigins) == 0 || slices.Contains(allowOrigins, "*"):
				header.Set(echo.HeaderAccessControlAllowOrigin, "*")
			case slices.Contains(allowOrigins, origin):
				header.Set(echo.HeaderAccessControlAllowOrigin, origin)
				header.Add(echo.HeaderVary, echo.HeaderOrigin)
			}
			header.Set(echo.HeaderAccessControlAllowMethods, allowMethods)
			header.Set(echo.HeaderAccessControlAllowHeaders, "Content-Type, Authorization, X-Requested-With")
			return next(c)
		}
	}
}
