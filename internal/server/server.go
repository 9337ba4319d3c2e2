// file: internal/server/server.go
// version: 2.0.0
// guid: 4a5b6c7d-8e9f-0a1b-2c3d-4e5f6a7b8c9d

// Package server exposes the daemon's status over HTTP: Prometheus metrics,
// a health probe, catalog counts and the configured libraries.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jdfalk/catalog-watcher/internal/cache"
	"github.com/jdfalk/catalog-watcher/internal/config"
	"github.com/jdfalk/catalog-watcher/internal/logging"
	"github.com/jdfalk/catalog-watcher/internal/metrics"
	"github.com/jdfalk/catalog-watcher/internal/server/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthPath = "/api/v1/health"

// CatalogCounter is the part of the catalog store the status endpoints read.
type CatalogCounter interface {
	CountWorks() (int, error)
	CountFiles() (int, error)
}

// Options configures a Server.
type Options struct {
	Addr         string
	Store        CatalogCounter
	Libraries    []config.Library
	DatabaseType string
	Version      string
	// Credentials protects every endpoint but health when set.
	Credentials middleware.Credentials
	// RateLimit is requests per minute per client; zero disables limiting.
	RateLimit      int
	RateLimitBurst int
	// StatsTTL is how long catalog counts are reused; zero recounts on
	// every request.
	StatsTTL time.Duration
	Logger   *slog.Logger
}

// Server represents the HTTP status server
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	opts       Options
	logger     *slog.Logger
	started    time.Time
	counts     *cache.Cache[catalogCounts]
}

type catalogCounts struct {
	works, files int
}

// New creates a status server. Nothing listens until Run.
func New(opts Options) *Server {
	logger := logging.OrDefault(opts.Logger).With("component", "server")

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	if opts.RateLimit > 0 {
		router.Use(middleware.NewIPRateLimiter(opts.RateLimit, opts.RateLimitBurst).Middleware())
	}
	router.Use(middleware.BasicAuth(opts.Credentials, healthPath))

	// Register metrics (idempotent)
	metrics.Register()

	s := &Server{
		router:  router,
		opts:    opts,
		logger:  logger,
		started: time.Now(),
		counts:  cache.New[catalogCounts](opts.StatsTTL),
	}
	s.setupRoutes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting status server", "addr", s.opts.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down status server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// setupRoutes configures all the routes
func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint (standard path)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api/v1")
	api.GET("/health", s.healthCheck)
	api.GET("/stats", s.stats)
	api.GET("/libraries", s.listLibraries)
	api.GET("/libraries/:name", s.getLibrary)
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"timestamp":      time.Now().Unix(),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"version":        s.opts.Version,
	})
}

func (s *Server) stats(c *gin.Context) {
	if s.opts.Store == nil {
		respondWithInternalError(c, s.logger, "database not initialized")
		return
	}
	counts, err := s.counts.GetOrLoad("catalog", s.countCatalog)
	if err != nil {
		respondWithInternalError(c, s.logger, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"works":         counts.works,
		"media_files":   counts.files,
		"libraries":     len(s.opts.Libraries),
		"database_type": s.opts.DatabaseType,
	})
}

func (s *Server) countCatalog() (catalogCounts, error) {
	works, err := s.opts.Store.CountWorks()
	if err != nil {
		return catalogCounts{}, fmt.Errorf("failed to count works: %w", err)
	}
	files, err := s.opts.Store.CountFiles()
	if err != nil {
		return catalogCounts{}, fmt.Errorf("failed to count media files: %w", err)
	}
	metrics.SetWorks(works)
	metrics.SetFiles(files)
	return catalogCounts{works: works, files: files}, nil
}

type libraryResponse struct {
	Name       string   `json:"name"`
	Path       string   `json:"path"`
	MediaType  string   `json:"media_type"`
	Extensions []string `json:"extensions"`
}

func toLibraryResponse(lib config.Library) libraryResponse {
	return libraryResponse{
		Name:       lib.DisplayName(),
		Path:       lib.Path,
		MediaType:  string(lib.MediaType),
		Extensions: lib.MediaType.ExtensionList(),
	}
}

func (s *Server) listLibraries(c *gin.Context) {
	items := make([]libraryResponse, 0, len(s.opts.Libraries))
	for _, lib := range s.opts.Libraries {
		items = append(items, toLibraryResponse(lib))
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (s *Server) getLibrary(c *gin.Context) {
	name := c.Param("name")
	for _, lib := range s.opts.Libraries {
		if lib.DisplayName() == name {
			c.JSON(http.StatusOK, toLibraryResponse(lib))
			return
		}
	}
	respondWithNotFound(c, s.logger, "library not found: "+name)
}
