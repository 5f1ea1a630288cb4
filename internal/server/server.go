// Package server provides the local companion HTTP API for archivist. It
// fronts the archive backend with the client-side state: the search slot,
// tracked ingestion jobs, and recent image searches.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hyperjump/archivist/internal/archive"
	"github.com/hyperjump/archivist/internal/catalog"
	"github.com/hyperjump/archivist/internal/config"
	"github.com/hyperjump/archivist/internal/recent"
	"github.com/hyperjump/archivist/internal/search"
	"github.com/hyperjump/archivist/internal/tracker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// requestTimeout bounds every route except the media stream.
const requestTimeout = 150 * time.Second

// WatchService lists the drop folders being watched.
type WatchService interface {
	Directories() []string
}

// Dependencies are the components the server exposes. Catalog, Recent and
// Watch are optional.
type Dependencies struct {
	Archive *archive.Client
	Search  *search.Orchestrator
	Tracker *tracker.Tracker
	Recent  *recent.Store
	Catalog *catalog.Catalog
	Watch   WatchService
}

// Server is the HTTP server for the companion API.
type Server struct {
	archive *archive.Client
	search  *search.Orchestrator
	tracker *tracker.Tracker
	recent  *recent.Store
	catalog *catalog.Catalog
	watch   WatchService
	config  *config.ServerConfig
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Dependencies, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = &config.ServerConfig{}
	}
	return &Server{
		archive: deps.Archive,
		search:  deps.Search,
		tracker: deps.Tracker,
		recent:  deps.Recent,
		catalog: deps.Catalog,
		watch:   deps.Watch,
		config:  cfg,
		logger:  logger,
	}
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Range"},
		ExposedHeaders: []string{"Content-Range", "Accept-Ranges", "Content-Length"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/videos/{name}/stream", s.handleStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Get("/health", s.handleHealth)

			r.Post("/search/text", s.handleSearchText)
			r.Post("/search/image", s.handleSearchImage)
			r.Get("/search/state", s.handleSearchState)
			r.Get("/search/filter", s.handleGetFilter)
			r.Put("/search/filter", s.handleSetFilter)
			r.Put("/search/limit", s.handleSetLimit)

			r.Get("/videos", s.handleListVideos)
			r.Get("/videos/{name}/url", s.handleStreamURL)

			r.Get("/jobs", s.handleListJobs)
			r.Post("/jobs/upload", s.handleUpload)
			r.Post("/jobs/process", s.handleProcessURL)
			r.Get("/jobs/{name}", s.handleGetJob)
			r.Post("/jobs/{name}/close", s.handleCloseJob)
			r.Delete("/jobs/{name}", s.handleDeleteJob)

			r.Get("/recent", s.handleListRecent)
			r.Delete("/recent", s.handleClearRecent)
			r.Delete("/recent/{id}", s.handleRemoveRecent)
			r.Post("/recent/{id}/search", s.handleRecentSearch)

			r.Post("/overlay", s.handleOverlay)
			r.Get("/watch", s.handleWatchDirectoriesList)
		})
	})

	return otelhttp.NewHandler(r, "archivist")
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// requestLogger logs each request through zap once it completes.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
