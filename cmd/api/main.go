package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"storefront-core/internal/backend"
	"storefront-core/internal/config"
	"storefront-core/internal/httpserver"
	"storefront-core/internal/logging"
	"storefront-core/internal/repository/guestcart"
	anonymoussvc "storefront-core/internal/service/anonymous"
	"storefront-core/internal/service/cartsync"
	customersvc "storefront-core/internal/service/customer"
	placessvc "storefront-core/internal/service/places"
	productsvc "storefront-core/internal/service/product"
	"storefront-core/internal/service/session"
)

const purgeInterval = time.Hour

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	cfg := config.FromEnv()
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	storageLogger := logger.Named("guestcart")
	guests, closeStorage, err := guestcart.Open(ctx, cfg, storageLogger)
	if err != nil {
		logger.Fatal("open guest cart storage", zap.String("store", cfg.GuestCartStore), zap.Error(err))
	}
	defer closeStorage()
	// Redis keys expire on their own; Postgres rows need a sweep.
	if p, ok := guests.(guestcart.Purger); ok {
		go purgeIdleCarts(ctx, p, cfg.GuestCartTTL, storageLogger)
	}

	client, err := backend.New(backend.Options{
		BaseURL: cfg.BackendBaseURL,
		Timeout: cfg.BackendTimeout,
		Logger:  logger.Named("backend"),
	})
	if err != nil {
		logger.Fatal("init backend client", zap.Error(err))
	}

	products := productsvc.New(client, cfg.CatalogCacheTTL, logger.Named("catalog"))
	places := placessvc.New(client, cfg.PlacesCacheTTL)
	anonymousService, err := anonymoussvc.New(cfg.GuestTokenSecret, cfg.GuestCartTTL)
	if err != nil {
		logger.Fatal("init guest tokens", zap.Error(err))
	}
	customerService, err := customersvc.New(cfg.AuthJWTSecret)
	if err != nil {
		logger.Fatal("init user tokens", zap.Error(err))
	}

	policy, err := cartsync.ParsePolicy(cfg.CartMergePolicy)
	if err != nil {
		logger.Fatal("parse merge policy", zap.Error(err))
	}
	sessions := session.NewManager(session.Deps{
		Guests:  guests,
		Remote:  client,
		Catalog: products,
		Places:  places,
		Promo:   client,
		Orders:  client,
		Merger:  cartsync.NewMerger(policy, products, logger.Named("merge")),
		Logger:  logger.Named("session"),
	}, cfg.SessionIdleTTL)
	go sessions.Run(ctx)

	srv, err := httpserver.New(cfg.HTTPAddr, logger.Named("http"), httpserver.Deps{
		Sessions:       sessions,
		Guests:         anonymousService,
		Users:          customerService,
		Places:         places,
		Storage:        guests,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RequestTimeout: cfg.BackendTimeout * 3,
	})
	if err != nil {
		logger.Fatal("init server", zap.Error(err))
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("server error", zap.Error(err))
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("server stopped")
	}
}

func purgeIdleCarts(ctx context.Context, repo guestcart.Purger, ttl time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.PurgeIdle(ctx, ttl)
			if err != nil {
				logger.Warn("purge idle guest carts", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("purged idle guest carts", zap.Int64("rows", n))
			}
		}
	}
}
