package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRewrite(t *testing.T, prefix, in, want string) {
	t.Helper()

	e := echo.New()
	e.Pre(rewritePrefix(prefix))
	var got string
	e.GET("/*", func(c echo.Context) error {
		got = c.Request().URL.Path
		return c.NoContent(http.StatusOK)
	})
	e.GET("/", func(c echo.Context) error {
		got = c.Request().URL.Path
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, in, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, want, got)
}

func TestRewritePrefix(t *testing.T) {
	t.Parallel()

	testRewrite(t, "/opds", "/opds/authorsindex", "/authorsindex")
	testRewrite(t, "/opds", "/opds", "/")
	testRewrite(t, "", "/authorsindex", "/authorsindex")
}

func TestRewriteCollapsesSlashes(t *testing.T) {
	t.Parallel()

	testRewrite(t, "", "//authorsindex///abc", "/authorsindex/abc")
}
