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

	"github.com/suspectuso/ada-tracker/internal/config"
	"github.com/suspectuso/ada-tracker/internal/notifier"
	"github.com/suspectuso/ada-tracker/internal/provider"
	"github.com/suspectuso/ada-tracker/internal/slots"
	"github.com/suspectuso/ada-tracker/internal/storage"
	"github.com/suspectuso/ada-tracker/internal/telegram"
	"github.com/suspectuso/ada-tracker/internal/wallet"
)

const surfacePollWait = 25 * time.Second

func main() {
	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	// Load config
	cfg := config.Load()

	if cfg.BotToken == "" {
		log.Error("BOT_TOKEN is required")
		os.Exit(1)
	}
	if len(cfg.AllowedChatIDs) == 0 {
		log.Error("ALLOWED_CHAT_IDS is required")
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.DBPath)

	// Initialize provider client
	client := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey)
	log.Info("provider client initialized", "base_url", cfg.ProviderBaseURL)

	// Initialize notifier
	hub := notifier.NewHub(log)
	relay := notifier.NewRelay(ctx, store, hub, log)
	defer relay.Close()

	// Initialize slots
	slotManager, err := slots.NewManager(ctx, store, slots.Options{
		FreeSlots:       cfg.FreeSlots,
		SlotsPerPayment: cfg.SlotsPerPayment,
		MaxTotalSlots:   config.MaxTotalSlots,
	}, log)
	if err != nil {
		log.Error("init slots", "error", err)
		os.Exit(1)
	}

	registry := wallet.NewRegistry(store, client, slotManager, hub, log)
	slotManager.SetCounter(registry)

	// Initialize telegram bot
	bot, err := telegram.New(cfg, registry, slotManager, client, log)
	if err != nil {
		log.Error("init telegram bot", "error", err)
		os.Exit(1)
	}
	for _, s := range bot.Surfaces() {
		unregister := hub.Register(s)
		defer unregister()
	}
	hub.SetOpener(bot.OpenFullView)
	log.Info("telegram bot initialized", "chats", len(cfg.AllowedChatIDs))

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)

	// Start wallet refresher
	refresher := wallet.NewRefresher(registry, cfg.WalletTTL, log)
	g.Go(func() error {
		refresher.Run(gctx, cfg.RefreshInterval)
		return nil
	})

	// Start bot polling
	g.Go(func() error {
		log.Info("starting bot polling...")
		bot.Start(gctx)
		return nil
	})

	// Start surface endpoint
	if cfg.SurfacePort != 0 {
		endpoint := notifier.NewEndpoint(hub, surfacePollWait, log)
		defer endpoint.Close()
		g.Go(func() error {
			return endpoint.Start(gctx, cfg.SurfacePort)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("tracker stopped", "error", err)
		os.Exit(1)
	}
}
