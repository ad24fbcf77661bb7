// Package server exposes the analytics queries over a REST API.
package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	gosync "sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"wattview/internal/config"
	"wattview/internal/db"
)

// VersionInfo holds build-time version metadata.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// RebuildFunc triggers a rollup rebuild. The server never calls
// it concurrently with itself; callers that need exclusion wrap
// it.
type RebuildFunc func(ctx context.Context) error

// Server is the HTTP server for the analytics API.
type Server struct {
	mu        gosync.RWMutex
	cfg       config.Config
	db        *db.DB
	analytics *db.Analytics
	logger    *zap.Logger
	mux       *http.ServeMux
	httpSrv   *http.Server
	version   VersionInfo
	rebuild   RebuildFunc

	// handlerDelay is injected before each timeout-wrapped
	// handler, used only by tests to guarantee handlers
	// exceed a short timeout. Zero in production.
	handlerDelay time.Duration
}

// New creates a new Server.
func New(
	cfg config.Config, database *db.DB, logger *zap.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		cfg:       cfg,
		db:        database,
		analytics: db.NewAnalytics(database, cfg.Tariff.CostPerKWh),
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the build-time version metadata.
func WithVersion(v VersionInfo) Option {
	return func(s *Server) { s.version = v }
}

// WithRebuild enables the rollup trigger endpoint. Nil is
// ignored and the endpoint answers 503.
func WithRebuild(fn RebuildFunc) Option {
	return func(s *Server) {
		if fn != nil {
			s.rebuild = fn
		}
	}
}

func (s *Server) routes() {
	s.mux.Handle("GET /api/v1/dates", s.withTimeout(s.handleListDates))

	s.mux.Handle("GET /api/v1/analytics/summary", s.withTimeout(s.handleSummary))
	s.mux.Handle("GET /api/v1/analytics/hourly", s.withTimeout(s.handleHourly))
	s.mux.Handle("GET /api/v1/analytics/weekly-peaks", s.withTimeout(s.handleWeeklyPeaks))
	s.mux.Handle("GET /api/v1/analytics/floors", s.withTimeout(s.handleFloors))
	s.mux.Handle("GET /api/v1/analytics/top-units", s.withTimeout(s.handleTopUnits))
	s.mux.Handle("GET /api/v1/analytics/equipment-types", s.withTimeout(s.handleEquipmentTypes))
	s.mux.Handle("GET /api/v1/analytics/buildings", s.withTimeout(s.handleBuildings))
	s.mux.Handle("GET /api/v1/analytics/branches", s.withTimeout(s.handleBranches))

	// Rebuilds can outlive any sane write timeout, so no
	// timeout wrapper here.
	s.mux.HandleFunc("POST /api/v1/rollup", s.handleTriggerRollup)

	s.mux.Handle("GET /api/v1/health", s.withTimeout(s.handleHealth))
	s.mux.Handle("GET /api/v1/version", s.withTimeout(s.handleVersion))
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// SetPort updates the listen port (for testing).
func (s *Server) SetPort(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Server.Port = port
}

// Handler returns the http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.logMiddleware(instrumentMiddleware(s.mux)))
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := s.cfg.Addr()
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()
	s.logger.Info("starting server", zap.String("addr", addr))
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpSrv
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// FindAvailablePort finds an available port starting from the
// given port, binding to the specified host.
func FindAvailablePort(host string, start int) int {
	for port := start; port < start+100; port++ {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			ln.Close()
			return port
		}
	}
	return start
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set(
				"Access-Control-Allow-Methods", "GET, POST, OPTIONS",
			)
			w.Header().Set(
				"Access-Control-Allow-Headers", "Content-Type",
			)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			s.logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path))
		}
		next.ServeHTTP(w, r)
	})
}
