// Package main provides the HTTP server for chartbracket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/chartbracket/internal/cache"
	"github.com/raphaelgruber/chartbracket/internal/coingecko"
	"github.com/raphaelgruber/chartbracket/internal/config"
	"github.com/raphaelgruber/chartbracket/internal/db"
	"github.com/raphaelgruber/chartbracket/internal/dexscreener"
	"github.com/raphaelgruber/chartbracket/internal/metrics"
	"github.com/raphaelgruber/chartbracket/internal/server"
	"github.com/raphaelgruber/chartbracket/internal/service"
	"github.com/raphaelgruber/chartbracket/internal/source"
)

const version = "0.1.0"

func main() {
	// Cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "chartbracket-server:", err)
		os.Exit(1)
	}
}

// run serves until ctx is cancelled. Every resource it opens is released
// before it returns, on error paths too.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chartbracket-server", flag.ContinueOnError)
	wipeDB := fs.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	noStore := fs.Bool("memory", false, "keep sessions in memory only, without SurrealDB")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	// Load configuration
	cfg := config.Load()

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel, "server")
	defer func() { _ = cleanup() }()

	logger.Info("chartbracket-server starting",
		"version", version,
		"port", cfg.ServerPort,
		"surrealdb_url", cfg.SurrealDBURL,
		"redis_addr", cfg.RedisAddr,
	)

	stats := metrics.NewCollector()
	prom := metrics.NewRegistry()

	opts := service.Options{
		Metrics: prom,
		Stats:   stats,
		Logger:  logger,
	}
	var store server.Pinger

	// Connect to database
	if !*noStore {
		dbCfg := db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}

		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		dbClient, err := db.NewClient(connectCtx, dbCfg, logger, stats)
		if err == nil {
			err = dbClient.InitSchema(connectCtx)
		}
		if err == nil && (*wipeDB || os.Getenv("CHARTBRACKET_WIPE_DB") == "true") {
			err = dbClient.WipeData(connectCtx)
		}
		cancel()
		if err != nil {
			logger.Error("failed to prepare database", "error", err)
			if dbClient != nil {
				_ = dbClient.Close(context.Background())
			}
			return fmt.Errorf("prepare database: %w", err)
		}
		defer func() {
			logger.Info("closing database connection")
			_ = dbClient.Close(context.Background())
		}()
		opts.Store = dbClient
		store = dbClient
	}

	// Metadata cache is optional: trending tickers resolve via the chart source without it.
	if cfg.RedisAddr != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		rdb, err := cache.Dial(dialCtx, cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		cancel()
		if err != nil {
			logger.Warn("metadata cache unavailable", "error", err)
		} else {
			defer rdb.Close()
			opts.Metadata = cache.New(rdb, cfg.MetadataTTL, stats, logger)
		}
	}

	// Upstream sources share the limiter/breaker settings but not their state.
	sourceOpts := source.Options{
		RPS:      cfg.SourceRPS,
		Timeout:  cfg.SourceTimeout,
		Metrics:  stats,
		Requests: prom.SourceRequests,
		Logger:   logger,
	}
	opts.Charts = dexscreener.New(cfg.DexScreenerURL, sourceOpts)
	tickers := coingecko.New(cfg.CoinGeckoURL, sourceOpts)

	manager := service.NewManager(opts)
	srv := server.New(server.Options{
		Manager:  manager,
		Tickers:  tickers,
		Store:    store,
		Metrics:  prom,
		Stats:    stats,
		Logger:   logger,
		Interval: cfg.ChartInterval,
	})

	logger.Info("server ready", "url", "http://localhost:"+cfg.ServerPort+"/")
	serveErr := srv.ListenAndServe(ctx, ":"+cfg.ServerPort, 10*time.Second)
	if serveErr != nil {
		logger.Error("server error", "error", serveErr)
	}

	// Let in-flight verdict writes reach the store before it closes.
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := manager.Close(closeCtx); err != nil {
		logger.Warn("pending writes abandoned", "error", err)
	}

	if serveErr != nil {
		return fmt.Errorf("serve: %w", serveErr)
	}
	logger.Info("shutdown complete")
	return nil
}
