// Package devserver serves a built site locally: static files with a
// single-page-app fallback to the root index.html, plus Prometheus metrics.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	indexFile       = "index.html"
	shutdownTimeout = 5 * time.Second
)

// Config configures the server.
type Config struct {
	// Root is the directory to serve.
	Root string
	Port int
	// Registry receives the HTTP collectors and is exposed on /metrics.
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

// Server is a static file server for a build directory.
type Server struct {
	cfg     Config
	router  chi.Router
	files   http.Handler
	logger  *zap.Logger
	metrics *httpMetrics
}

// New validates cfg and builds the router.
func New(cfg Config) (*Server, error) {
	if cfg.Root == "" {
		return nil, errors.New("root directory is required")
	}
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", cfg.Root)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m, err := newHTTPMetrics(cfg.Registry)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		files:   http.FileServer(http.Dir(cfg.Root)),
		logger:  logger,
		metrics: m,
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.middleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	r.Get("/*", s.static)
	r.Head("/*", s.static)

	s.router = r
	return s, nil
}

// Handler returns the router for use with http.Server or httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on the configured port until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("build server started", zap.Int("port", s.cfg.Port), zap.String("root", s.cfg.Root))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("build server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("build server shutdown: %w", err)
	}
	s.logger.Info("build server stopped")
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// static serves existing files and directories with an index; everything
// else gets the root index so client-side routing takes over.
func (s *Server) static(w http.ResponseWriter, r *http.Request) {
	name := filepath.Join(s.cfg.Root, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
	info, err := os.Stat(name)
	switch {
	case err == nil && !info.IsDir():
		s.files.ServeHTTP(w, r)
		return
	case err == nil && info.IsDir():
		if _, err := os.Stat(filepath.Join(name, indexFile)); err == nil {
			s.files.ServeHTTP(w, r)
			return
		}
	case !errors.Is(err, fs.ErrNotExist):
		s.logger.Warn("stat request path", zap.String("path", r.URL.Path), zap.Error(err))
	}
	s.fallback(w, r)
}

func (s *Server) fallback(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(filepath.Join(s.cfg.Root, indexFile))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer func() {
		_ = f.Close()
	}()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, "index unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, indexFile, info.ModTime(), f)
}
