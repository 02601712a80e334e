package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/solspray/solspray/service/config"
	"github.com/solspray/solspray/service/db"
	"github.com/solspray/solspray/service/distribute"
	"github.com/solspray/solspray/service/metrics"
	natspkg "github.com/solspray/solspray/service/nats"
	"github.com/solspray/solspray/service/pass"
	"github.com/solspray/solspray/service/server"
	"github.com/solspray/solspray/service/solana"
)

func main() {
	// Local development convenience; production sets real env vars.
	godotenv.Load()

	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize database store and schema
	store := db.NewStore(dbPool)
	if err := store.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	// Initialize metrics
	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Initialize Solana RPC client
	// Note: For premium RPC endpoints, include API key in the URL
	rpcClient := rpc.New(cfg.SolanaRPCURL)
	chain := solana.NewClient(rpcClient, m, logger)
	chain.SetConfirmTimeout(cfg.ConfirmTimeout)
	logger.Info("initialized solana RPC client", "url", cfg.SolanaRPCURL)

	// Load the sender keypair
	signer, err := solana.NewLocalSignerFromFile(cfg.KeypairPath, logger)
	if err != nil {
		logger.Error("failed to load keypair", "path", cfg.KeypairPath, "error", err)
		os.Exit(1)
	}
	sender := signer.PublicKey()
	logger.Info("loaded sender keypair", "address", sender.String())

	feeCollector, err := solanago.PublicKeyFromBase58(cfg.FeeCollectorAddress)
	if err != nil {
		logger.Error("invalid fee collector address", "address", cfg.FeeCollectorAddress, "error", err)
		os.Exit(1)
	}

	// Initialize NATS progress publisher
	publisher, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "url", cfg.NATSURL, "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	// Initialize SSE publisher (relays NATS progress to HTTP clients)
	ssePublisher, err := server.NewSSEPublisher(cfg.NATSURL, logger)
	if err != nil {
		logger.Error("failed to initialize SSE publisher", "error", err)
		os.Exit(1)
	}

	// Initialize pass store (falls back to in-memory when the dir is
	// unavailable)
	passStore := pass.NewStore(cfg.PassStoreDir, logger)
	defer passStore.Close()

	// Assemble the distribution pipeline
	builder := distribute.NewBuilder(chain, solana.DeriveAssociatedTokenAddress, feeCollector, logger)
	orchestrator := distribute.NewOrchestrator(builder, chain, signer, chain, publisher, store, m, logger)

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, store, orchestrator, chain,
		solana.DeriveAssociatedTokenAddress, sender, passStore, ssePublisher, m, logger)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
