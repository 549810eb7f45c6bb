package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/suspectuso/ada-tracker/internal/blockfrost"
	"github.com/suspectuso/ada-tracker/internal/config"
	"github.com/suspectuso/ada-tracker/internal/server"
	"github.com/suspectuso/ada-tracker/internal/storage"
)

const sweepInterval = time.Minute

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	cfg := config.Load()

	if cfg.BlockfrostProjectID == "" {
		log.Error("BLOCKFROST_PROJECT_ID is required")
		os.Exit(1)
	}
	if cfg.ServiceWalletAddr == "" {
		log.Error("SERVICE_WALLET_ADDR is required")
		os.Exit(1)
	}

	ledger, err := storage.New(cfg.LedgerPath)
	if err != nil {
		log.Error("init ledger", "error", err)
		os.Exit(1)
	}
	defer ledger.Close()
	log.Info("ledger initialized", "path", cfg.LedgerPath)

	upstream := blockfrost.NewClient(cfg.BlockfrostBaseURL, cfg.BlockfrostProjectID)

	srv := server.New(upstream, ledger, server.Options{
		ServiceAddress: cfg.ServiceWalletAddr,
		PriceLovelace:  cfg.PaymentPriceLovelace,
		PaymentTTL:     cfg.PaymentTTL,
		CacheTTL:       cfg.CacheTTL,
		CacheSize:      cfg.CacheSize,
	}, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx, cfg.ListenPort)
	})
	g.Go(func() error {
		srv.SweepLoop(gctx, sweepInterval)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("companion server", "error", err)
		os.Exit(1)
	}
	log.Info("companion stopped")
}
