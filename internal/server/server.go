package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coah80/squish/internal/config"
	"github.com/coah80/squish/internal/middleware"
	"github.com/coah80/squish/internal/routes"
)

func New(d *routes.Deps) *http.Server {
	return &http.Server{
		Addr:              ":" + config.Port,
		Handler:           Router(d, publicDir()),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       0,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

// Router assembles the middleware stack and every route. Static files are
// served from public when the directory exists.
func Router(d *routes.Deps, public string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(securityHeaders)
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	r.Use(middleware.LoadCORS())

	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit)
		routes.CoreRoutes(r, d)
		routes.CompressRoutes(r, d)
	})

	if info, err := os.Stat(public); public != "" && err == nil && info.IsDir() {
		fileServer := http.FileServer(http.Dir(public))
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			cleaned := filepath.Clean(filepath.Join(public, strings.TrimPrefix(r.URL.Path, "/")))
			if !strings.HasPrefix(cleaned, public) {
				http.NotFound(w, r)
				return
			}
			if _, err := os.Stat(cleaned); os.IsNotExist(err) {
				http.ServeFile(w, r, filepath.Join(public, "index.html"))
				return
			}
			fileServer.ServeHTTP(w, r)
		})
	}

	return r
}

func publicDir() string {
	return filepath.Join(filepath.Dir(os.Args[0]), "public")
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func PrintBanner() {
	fmt.Printf(`
  ┌──────────────────────────────────┐
  │         squish %s            │
  │     video compression server     │
  └──────────────────────────────────┘
`, padVersion(config.Version))
}

func padVersion(v string) string {
	for len(v) < 10 {
		v += " "
	}
	return v
}
