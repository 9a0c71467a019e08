package opds

import (
	"github.com/labstack/echo/v4"
	"github.com/tinyopds/tinyopds/pkg/auth"
	"github.com/tinyopds/tinyopds/pkg/config"
	"github.com/tinyopds/tinyopds/pkg/converter"
	"github.com/tinyopds/tinyopds/pkg/covers"
	"github.com/tinyopds/tinyopds/pkg/genres"
	"github.com/tinyopds/tinyopds/pkg/library"
)

// RegisterRoutes registers the OPDS catalog routes on the Echo instance.
func RegisterRoutes(e *echo.Echo, lib *library.Library, taxonomy *genres.Taxonomy, cfg *config.Config, coverCache *covers.Cache, conv *converter.Converter, stats *auth.Stats) {
	h := &handler{
		svc:    NewService(lib, taxonomy, cfg),
		lib:    lib,
		covers: coverCache,
		conv:   conv,
		stats:  stats,
		cfg:    cfg,
	}

	e.GET("/", h.root)
	e.GET("/authorsindex", h.authorsIndex)
	e.GET("/authorsindex/:prefix", h.authorsIndex)
	e.GET("/author/:name", h.authorBooks)
	e.GET("/sequencesindex", h.sequencesIndex)
	e.GET("/sequencesindex/:prefix", h.sequencesIndex)
	e.GET("/sequence/:name", h.sequenceBooks)
	e.GET("/genres", h.genresIndex)
	e.GET("/genres/:category", h.genresIndex)
	e.GET("/genre/:tag", h.genreBooks)
	e.GET("/newdate", h.newBooks)
	e.GET("/search", h.search)
	e.GET("/opds-opensearch.xml", h.openSearch)
	e.GET("/cover/:file", h.cover)
	e.GET("/thumbnail/:file", h.thumbnail)
	e.GET("/favicon.ico", h.favicon)
	e.GET("/:id/:file", h.download)
}
