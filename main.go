package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ObiAU/otprelay/internal/ai"
	"github.com/ObiAU/otprelay/internal/cache"
	"github.com/ObiAU/otprelay/internal/config"
	"github.com/ObiAU/otprelay/internal/logging"
	"github.com/ObiAU/otprelay/internal/parser"
	"github.com/ObiAU/otprelay/internal/registry"
	"github.com/ObiAU/otprelay/internal/relay"
	"github.com/ObiAU/otprelay/internal/sources"
	"github.com/ObiAU/otprelay/internal/storage"
	"github.com/ObiAU/otprelay/internal/telegram"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.Init(logging.Options{Level: cfg.LogLevel, Mode: cfg.LogMode, Filename: cfg.LogFile})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(cfg.StoreBackend, cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	delivered, err := cache.New(ctx, store)
	if err != nil {
		logger.Fatal("failed to load delivery log", zap.Error(err))
	}

	panels := registry.New(store)
	if cfg.PanelsFile != "" {
		inputs, err := config.LoadPanels(cfg.PanelsFile)
		if err != nil {
			logger.Fatal("failed to load panels file", zap.Error(err))
		}
		added, err := panels.Seed(ctx, inputs)
		if err != nil {
			logger.Fatal("failed to seed panels", zap.Error(err))
		}
		logger.Info("panels seeded", zap.Int("added", added), zap.Int("in_file", len(inputs)))
	}

	chats := registry.NewChatList(store)
	if err := chats.Seed(ctx, cfg.ChatIDs); err != nil {
		logger.Fatal("failed to seed destination chats", zap.Error(err))
	}

	httpClient := sources.NewHTTPClient(cfg.FetchTimeout)
	sessions := sources.NewSessionCache(httpClient)
	dispatcher := sources.NewDispatcher(httpClient, sessions, cfg.RecordLimit)

	bot, err := telegram.NewBot(cfg.TelegramToken, telegram.Options{
		AdminID:       cfg.AdminID,
		WebhookURL:    cfg.TelegramWebhookURL,
		NotifyTimeout: cfg.NotifyTimeout,
		Panels:        panels,
		Chats:         chats,
		Sessions:      sessions,
	})
	if err != nil {
		logger.Fatal("failed to create telegram bot", zap.Error(err))
	}

	otpRelay := relay.New(cfg, panels, dispatcher, delivered, bot)
	otpRelay.SetWebhookHandler(bot.WebhookHandler)
	if cfg.OpenAIAPIKey != "" {
		otpRelay.SetClassifier(ai.NewOpenAIClient(cfg.OpenAIAPIKey, parser.ServiceNames()))
	}
	bot.SetStatusProvider(otpRelay)

	logger.Info("starting OTP relay",
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Int("known_messages", delivered.Len()),
	)
	if err := otpRelay.Run(ctx); err != nil {
		logger.Error("relay exited with error", zap.Error(err))
	}
	logger.Info("OTP relay stopped gracefully")
}
