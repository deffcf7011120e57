// Package server exposes chart-rating sessions and tournaments over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/raphaelgruber/chartbracket/internal/metrics"
	"github.com/raphaelgruber/chartbracket/internal/service"
)

// TickerSource lists the largest coins as tickers. *coingecko.Client implements it.
type TickerSource interface {
	TopTickers(ctx context.Context, n int) ([]string, error)
}

// Pinger reports whether a backing store is reachable. *db.Client implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Manager *service.Manager
	Tickers TickerSource
	Store   Pinger
	Metrics *metrics.Registry
	Stats   *metrics.Collector
	Logger  *slog.Logger

	// Interval is the chart interval used for embed URLs (default 1h).
	Interval string
	// RequestTimeout bounds non-streaming handlers (default 30s).
	RequestTimeout time.Duration
}

// Server routes HTTP requests to the session manager.
type Server struct {
	router  *mux.Router
	manager *service.Manager
	tickers TickerSource
	store   Pinger
	prom    *metrics.Registry
	stats   *metrics.Collector
	logger  *slog.Logger

	interval string
	timeout  time.Duration
}

// New creates a server and registers its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Interval == "" {
		opts.Interval = "1h"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	s := &Server{
		router:   mux.NewRouter(),
		manager:  opts.Manager,
		tickers:  opts.Tickers,
		store:    opts.Store,
		prom:     opts.Metrics,
		stats:    opts.Stats,
		logger:   opts.Logger,
		interval: opts.Interval,
		timeout:  opts.RequestTimeout,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger, s.prom))

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.prom != nil {
		r.Handle("/metrics", s.prom.Handler()).Methods(http.MethodGet)
	}

	// Streaming routes are registered on the root router so the request
	// timeout below does not cut them off.
	r.HandleFunc("/api/sessions/{id}/events", s.handleEvents).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.timeoutMiddleware)

	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/generate-session", s.handleGenerateSession).Methods(http.MethodGet)
	api.HandleFunc("/trending-charts", s.handleTrendingCharts).Methods(http.MethodGet)
	api.HandleFunc("/trending-tickers", s.handleTrendingTickers).Methods(http.MethodGet)
	api.HandleFunc("/store-trending-metadata", s.handleStoreMetadata).Methods(http.MethodPost)
	api.HandleFunc("/get-trending-metadata/{id}", s.handleGetMetadata).Methods(http.MethodGet)
	api.HandleFunc("/top-tickers", s.handleTopTickers).Methods(http.MethodGet)
	api.HandleFunc("/record-choice", s.handleRecordChoice).Methods(http.MethodPost)
	api.HandleFunc("/session-results/{id}", s.handleSessionResults).Methods(http.MethodGet)

	api.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/finish", s.handleFinish).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/tournament", s.handleStartTournament).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/tournament", s.handleTournament).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/tournament/result", s.handleReportResult).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found", Code: "not_found"})
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Handler returns the routed handler wrapped in CORS handling. CORS sits
// outside the router so preflight requests never hit method matching.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.router)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
