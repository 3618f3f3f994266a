package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"storefront-core/internal/config"
	"storefront-core/internal/logging"
	"storefront-core/internal/repository/guestcart"
	"storefront-core/internal/seed"
	anonymoussvc "storefront-core/internal/service/anonymous"
)

func main() {
	lines := flag.String("lines", "", "comma-separated id:qty pairs, e.g. P1:2,P2:1 (default: demo cart)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	cfg := config.FromEnv()
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	var pairs []string
	if *lines != "" {
		pairs = strings.Split(*lines, ",")
	}
	parsed, err := seed.ParseLines(pairs)
	if err != nil {
		logger.Fatal("parse lines", zap.Error(err))
	}

	ctx := context.Background()
	repo, closeStorage, err := guestcart.Open(ctx, cfg, logger.Named("guestcart"))
	if err != nil {
		logger.Fatal("open guest cart storage", zap.Error(err))
	}
	defer closeStorage()

	issuer, err := anonymoussvc.New(cfg.GuestTokenSecret, cfg.GuestCartTTL)
	if err != nil {
		logger.Fatal("init guest tokens", zap.Error(err))
	}

	res, err := seed.Apply(ctx, repo, issuer, parsed)
	if err != nil {
		logger.Fatal("seed apply", zap.Error(err))
	}

	logger.Info("seed applied", zap.String("anonymous_id", res.AnonymousID), zap.Int("lines", len(res.Lines)))
	fmt.Println(res.Token)
}
