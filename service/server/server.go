package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/solspray/solspray/service/config"
	"github.com/solspray/solspray/service/db"
	"github.com/solspray/solspray/service/distribute"
	"github.com/solspray/solspray/service/metrics"
	"github.com/solspray/solspray/service/pass"
)

// Distributor executes one distribution run end to end. The orchestrator
// satisfies this; tests swap in a stub.
type Distributor interface {
	Run(ctx context.Context, req distribute.Request) (*distribute.Result, error)
}

// BalanceReader reads the sender wallet's native and token balances for
// dry-run summaries.
type BalanceReader interface {
	GetBalanceSOL(ctx context.Context, address solana.PublicKey) (float64, error)
	GetTokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error)
}

// RunReader exposes persisted run history. *db.Store satisfies this.
type RunReader interface {
	GetRun(ctx context.Context, runID string) (*db.Run, error)
	ListRuns(ctx context.Context, walletAddress string, limit int32) ([]*db.Run, error)
	ListBatches(ctx context.Context, runID string) ([]*db.Batch, error)
}

// Server is the HTTP API for the distribution service.
type Server struct {
	addr         string
	cfg          *config.Config
	store        RunReader
	distributor  Distributor
	chain        BalanceReader
	deriveATA    distribute.ATADeriver
	sender       solana.PublicKey
	passes       pass.Store
	ssePublisher *SSEPublisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The ssePublisher is optional - if nil, SSE endpoints won't be available.
// The passes store is optional - if nil, pass endpoints won't be available.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, cfg *config.Config, store RunReader, distributor Distributor, chain BalanceReader, deriveATA distribute.ATADeriver, sender solana.PublicKey, passes pass.Store, ssePublisher *SSEPublisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:         addr,
		cfg:          cfg,
		store:        store,
		distributor:  distributor,
		chain:        chain,
		deriveATA:    deriveATA,
		sender:       sender,
		passes:       passes,
		ssePublisher: ssePublisher,
		metrics:      m,
		logger:       logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := s.routes()

	// Wrap mux with CORS middleware
	handler := corsMiddleware(mux)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE connections stay open indefinitely
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// routes assembles the mux. Split out from Start so tests can exercise
// the full routing table without binding a socket.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	instrument := func(name string, h http.Handler) http.Handler {
		if s.metrics == nil {
			return h
		}
		return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
	}

	// Distribution routes
	mux.Handle("POST /api/v1/distributions", instrument("/api/v1/distributions",
		handleStartDistribution(s.distributor, s.sender, s.logger)))
	mux.Handle("POST /api/v1/distributions/summary", instrument("/api/v1/distributions/summary",
		handleSummary(s.chain, s.deriveATA, s.sender, s.logger)))
	mux.Handle("GET /api/v1/distributions", instrument("/api/v1/distributions",
		handleListRuns(s.store, s.logger)))
	mux.Handle("GET /api/v1/distributions/{run_id}", instrument("/api/v1/distributions/{run_id}",
		handleGetRun(s.store, s.logger)))

	// Pass routes (if pass store is configured)
	if s.passes != nil {
		mux.Handle("GET /api/v1/passes/{address}", handleGetPass(s.passes, s.logger))
		mux.Handle("POST /api/v1/passes", handleSavePass(s.passes, s.logger))
	}

	// SSE streaming endpoints (if SSE publisher is configured)
	if s.ssePublisher != nil {
		mux.Handle("GET /api/v1/stream/distributions/{run_id}", handleStreamProgress(s.ssePublisher, s.logger))
		mux.Handle("GET /api/v1/stream/distributions", handleStreamProgress(s.ssePublisher, s.logger))
		s.logger.Info("SSE streaming endpoints enabled")
	} else {
		s.logger.Warn("SSE publisher not configured, streaming endpoints disabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return mux
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close SSE publisher first (disconnects all clients)
	if s.ssePublisher != nil {
		s.ssePublisher.Close()
	}

	// Then shutdown HTTP server
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
