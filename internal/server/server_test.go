package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"github.com/coah80/squish/internal/routes"
	"github.com/coah80/squish/internal/services"
)

func testDeps(t *testing.T) *routes.Deps {
	jobs := services.NewRegistry()
	return &routes.Deps{
		Jobs:       jobs,
		Compressor: services.NewCompressor(services.CompressorConfig{OutputDir: t.TempDir(), MaxActive: 1}, jobs, nil, nil, nil),
		UploadDir:  t.TempDir(),
	}
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	h := Router(testDeps(t), "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	be.Equal(t, rec.Code, http.StatusOK)
	be.Equal(t, rec.Header().Get("X-Content-Type-Options"), "nosniff")
	be.True(t, strings.Contains(rec.Body.String(), `"status":"ok"`))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	be.Equal(t, rec.Code, http.StatusOK)
	be.True(t, strings.Contains(rec.Body.String(), "squish_http_requests_in_flight"))
}

func TestRouterStaticFallback(t *testing.T) {
	public := t.TempDir()
	be.Err(t, os.WriteFile(filepath.Join(public, "index.html"), []byte("<html>squish</html>"), 0o644), nil)
	h := Router(testDeps(t), public)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/some/page", nil))
	be.Equal(t, rec.Code, http.StatusOK)
	be.True(t, strings.Contains(rec.Body.String(), "squish"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/unknown", nil))
	be.Equal(t, rec.Code, http.StatusNotFound)
}
