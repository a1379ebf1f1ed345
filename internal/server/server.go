// Package server provides the read-only HTTP API over the last persisted snapshot.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/consensus/internal/domain"
	"github.com/aristath/consensus/internal/export"
)

// Store is the read side of the state store
type Store interface {
	LoadSnapshot(ctx context.Context) ([]domain.CanonicalSecurity, error)
	ListFailures(ctx context.Context) ([]domain.FailureRecord, error)
	ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error)
}

// PreviousOutput reads the last exported stocks.json
type PreviousOutput interface {
	LoadPrevious() (*export.Document, error)
}

// Config holds server configuration
type Config struct {
	Log            zerolog.Logger
	Store          Store
	Previous       PreviousOutput // Fallback when the store has no snapshot
	Port           int
	StaleThreshold int
	DataDir        string // Reported in /health disk stats when set
	DevMode        bool
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	store     Store
	previous  PreviousOutput
	threshold int
	port      int
	dataDir   string
	log       zerolog.Logger

	mu       sync.RWMutex
	snapshot []domain.CanonicalSecurity
	index    map[string]int
	loadedAt time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		store:     cfg.Store,
		previous:  cfg.Previous,
		threshold: cfg.StaleThreshold,
		port:      cfg.Port,
		dataDir:   cfg.DataDir,
		log:       cfg.Log.With().Str("component", "server").Logger(),
		index:     make(map[string]int),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/securities", s.handleListSecurities)
		r.Get("/securities/{ticker}", s.handleGetSecurity)
		r.Get("/failures", s.handleListFailures)
		r.Get("/runs", s.handleListRuns)
	})
}

// Handler returns the root handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Reload replaces the cached snapshot with the one in the store. When the
// store is unreadable or empty the last exported stocks.json is served instead.
func (s *Server) Reload(ctx context.Context) error {
	secs, err := s.store.LoadSnapshot(ctx)
	if (err != nil || len(secs) == 0) && s.previous != nil {
		if doc, perr := s.previous.LoadPrevious(); perr == nil {
			s.log.Info().Err(err).Int("securities", len(doc.Stocks)).Msg("Serving last exported snapshot")
			secs, err = doc.Stocks, nil
		}
	}
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	index := make(map[string]int, len(secs))
	for i, sec := range secs {
		index[sec.Ticker] = i
	}

	s.mu.Lock()
	s.snapshot = secs
	s.index = index
	s.loadedAt = time.Now().UTC()
	s.mu.Unlock()

	s.log.Debug().Int("securities", len(secs)).Msg("Snapshot reloaded")
	return nil
}

// ReloadJob returns a scheduler job that refreshes the cached snapshot
func (s *Server) ReloadJob() *ReloadJob {
	return &ReloadJob{server: s}
}

// ReloadJob refreshes the cached snapshot on a schedule
type ReloadJob struct {
	server *Server
}

// Name returns the job name
func (j *ReloadJob) Name() string {
	return "snapshot_reload"
}

// Run reloads the snapshot
func (j *ReloadJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return j.server.Reload(ctx)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
