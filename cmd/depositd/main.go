// Package main runs the deposit verification service: a REST API that checks
// claimed Solana deposits against the chain and credits them to a ledger
// exactly once.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	app "github.com/leverdex/depositd/internal/app"
	"github.com/leverdex/depositd/internal/app/httpapi"
	"github.com/leverdex/depositd/internal/app/metrics"
	"github.com/leverdex/depositd/internal/app/storage"
	"github.com/leverdex/depositd/internal/app/storage/postgres"
	redisstore "github.com/leverdex/depositd/internal/app/storage/redis"
	"github.com/leverdex/depositd/internal/chain"
	"github.com/leverdex/depositd/internal/config"
	"github.com/leverdex/depositd/internal/middleware"
	"github.com/leverdex/depositd/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	log := logger.NewDefault("depositd")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Error("load configuration")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := buildStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("initialise deposit store")
		os.Exit(1)
	}

	chainClient, err := chain.NewClient(chain.Config{RPCURL: cfg.RPCURL})
	if err != nil {
		log.WithError(err).Error("initialise chain client")
		os.Exit(1)
	}

	opts := app.Options{}
	if cfg.Reconciler.Enabled {
		opts.ReconcileInterval = cfg.Reconciler.Interval
		opts.ReconcileScanLimit = cfg.Reconciler.ScanLimit
	}

	application, err := app.New(store, chainClient, cfg.DepositAddress, opts, log)
	if err != nil {
		log.WithError(err).Error("initialise application")
		os.Exit(1)
	}

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start application")
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", httpapi.NewHandler(application))

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
	limiter.StartCleanup(5 * time.Minute)
	cors := middleware.NewCORSMiddleware(cfg.AllowedOrigins)

	handler := metrics.InstrumentHandler(cors.Handler(limiter.Handler(mux)))

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Listen).
			WithField("store", cfg.Store.Backend).
			WithField("deposit_address", cfg.DepositAddress).
			Info("deposit API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server failed")
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application shutdown")
	}
	log.Info("stopped")
}

func buildStore(ctx context.Context, cfg config.Config, log *logger.Logger) (storage.DepositStore, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		store, err := postgres.Open(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		log.Info("using postgres deposit store")
		return store, nil
	case config.StoreRedis:
		store, err := redisstore.Open(ctx, cfg.Store.RedisAddr, cfg.Store.RedisDB)
		if err != nil {
			return nil, err
		}
		log.Info("using redis deposit store")
		return store, nil
	default:
		log.Info("using in-memory deposit store")
		return nil, nil
	}
}
