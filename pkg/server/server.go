// Package server assembles the Echo instance and HTTP server for the OPDS
// catalog.
package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/tinyopds/tinyopds/pkg/auth"
	"github.com/tinyopds/tinyopds/pkg/config"
	"github.com/tinyopds/tinyopds/pkg/converter"
	"github.com/tinyopds/tinyopds/pkg/covers"
	"github.com/tinyopds/tinyopds/pkg/errcodes"
	"github.com/tinyopds/tinyopds/pkg/genres"
	"github.com/tinyopds/tinyopds/pkg/library"
	"github.com/tinyopds/tinyopds/pkg/opds"
)

const maxPostBody = 1 << 20

// New wires middleware and routes and returns the HTTP server.
func New(cfg *config.Config, lib *library.Library, taxonomy *genres.Taxonomy, guard *auth.Guard, stats *auth.Stats, coverCache *covers.Cache, conv *converter.Converter) *http.Server {
	e := echo.New()

	e.Pre(rewritePrefix(cfg.RootPrefix))
	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(guard.Middleware)

	opds.RegisterRoutes(e, lib, taxonomy, cfg, coverCache, conv, stats)

	// OPDS is read-only; stray POSTs from misbehaving readers are logged and
	// refused, reading at most 1 MiB of body.
	e.POST("/*", unsupportedMethod)

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	timeout := time.Duration(cfg.SocketTimeoutSeconds) * time.Second
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.InterfaceIP, cfg.ServerPort),
		Handler:           e,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// rewritePrefix strips the configured root prefix and collapses duplicate
// slashes, so sloppily configured readers still reach the catalog.
func rewritePrefix(prefix string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			p := req.URL.Path
			if prefix != "" {
				p = strings.TrimPrefix(p, prefix)
			}
			for strings.Contains(p, "//") {
				p = strings.ReplaceAll(p, "//", "/")
			}
			if p == "" {
				p = "/"
			}
			req.URL.Path = p
			return next(c)
		}
	}
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}

func unsupportedMethod(c echo.Context) error {
	_, _ = io.CopyN(io.Discard, c.Request().Body, maxPostBody)
	logger.FromEchoContext(c).Warn("unsupported POST request")
	return echo.NewHTTPError(http.StatusMethodNotAllowed, "Method Not Allowed")
}
