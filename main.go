package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"ms-passbot/internal/api"
	"ms-passbot/internal/auth"
	"ms-passbot/internal/bot"
	"ms-passbot/internal/config"
	"ms-passbot/internal/kafka"
	"ms-passbot/internal/logger"
	"ms-passbot/internal/payment"
	"ms-passbot/internal/registration"
	lock "ms-passbot/internal/registration/redis"
	"ms-passbot/internal/scheduler"
	"ms-passbot/internal/sse"
	"ms-passbot/internal/storage"
	qr "ms-passbot/internal/tickets/qr_genrator"
)

func connectRedis(ctx context.Context, cfg config.RedisConfig, logger *logger.Logger) (*redis.Client, lock.Locker) {
	if cfg.Addr == "" {
		logger.Info("REDIS", "REDIS_ADDR not set, purchase lock disabled")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("REDIS", fmt.Sprintf("Redis connection error, purchase lock disabled: %v", err))
		client.Close()
		return nil, nil
	}

	logger.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client, lock.NewRedis(client, cfg.LockTTL)
}

func connectKafka(ctx context.Context, cfg config.KafkaConfig, logger *logger.Logger) kafka.Publisher {
	if !cfg.Enabled {
		logger.Info("KAFKA", "KAFKA_ENABLED is false, domain events are not published")
		return kafka.NopPublisher{}
	}

	logger.Info("KAFKA", fmt.Sprintf("Using Kafka brokers %v", cfg.Brokers))
	if err := kafka.EnsureTopicsExist(ctx, cfg.Brokers, kafka.Topics(cfg.TopicPrefix), logger); err != nil {
		logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	} else {
		logger.Info("KAFKA", "Required topics ensured successfully")
	}
	return kafka.NewProducer(cfg.Brokers, cfg.TopicPrefix, logger)
}

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	logger := logger.NewLogger(cfg.Log.Dir, cfg.Log.Level)
	defer logger.Close()

	logger.Info("APP", "Starting passbot initialization")
	if envErr != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("CONFIG", err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer store.Close()

	redisClient, purchaseLock := connectRedis(ctx, cfg.Redis, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	publisher := connectKafka(ctx, cfg.Kafka, logger)
	defer publisher.Close()

	gateway, err := payment.NewGateway(cfg.Payment, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		logger.Fatal("PAYMENT", err.Error())
	}
	payments := payment.NewAdapter(gateway, cfg.Payment.PollInterval, cfg.Payment.FormGrace, logger)
	logger.Info("PAYMENT", fmt.Sprintf("Using %s gateway, timeout %s", gateway.Name(), cfg.Payment.Timeout))

	telegram, err := bot.NewTelegram(cfg.Bot.Token, logger)
	if err != nil {
		logger.Fatal("BOT", err.Error())
	}
	username := cfg.Bot.Username
	if username == "" {
		username = telegram.Username()
	}
	qrGenerator := qr.NewQRGenerator(username, cfg.Bot.QRWorkers)

	checkIns := sse.NewCheckInEmitter()
	tokens := auth.NewTokens(cfg.HTTP.ScannerSecret, cfg.HTTP.ScannerTokenTTL)

	purchases := registration.NewService(store, payments, purchaseLock, publisher, registration.Options{
		Amount:      cfg.Ticket.AmountMinor(),
		Description: cfg.Ticket.Description,
		Timeout:     cfg.Payment.Timeout,
		SuccessURL:  qrGenerator.ActivationLink,
	}, logger)
	admin := registration.NewAdmin(store, publisher, checkIns, logger)
	broadcaster := registration.NewBroadcaster(telegram, store, cfg.Bot.BroadcastRate, logger)

	passbot := bot.New(bot.Deps{
		Messenger:   telegram,
		Store:       store,
		Purchases:   purchases,
		Admin:       admin,
		Broadcaster: broadcaster,
		QR:          qrGenerator,
		Tokens:      tokens,
	}, bot.Options{
		AdminIDs:        cfg.Bot.AdminIDs,
		Workers:         cfg.Bot.Workers,
		PromptTimeout:   cfg.Bot.PromptTimeout,
		DefaultCapacity: cfg.Ticket.DefaultCapacity,
		Price:           cfg.Ticket.Price,
	}, logger)

	reconciler := registration.NewReconciler(store, payments, passbot, publisher, cfg.Scheduler.StaleAfter, logger)
	go scheduler.New(reconciler, cfg.Scheduler.ReconcileInterval, logger).Start(ctx)

	if !tokens.Enabled() {
		logger.Warn("AUTH", "SCANNER_JWT_SECRET not set, scanner API rejects every request")
	}
	handler := api.NewHandler(admin, store, checkIns, logger)
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.NewRouter(handler, tokens),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	logger.Info("ROUTER", "Scanner routes registered under /api, metrics at /metrics")

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Scanner API running on %s", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		passbot.Run(ctx, telegram.Updates())
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancel()
	telegram.Stop()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}

	select {
	case <-botDone:
		logger.Info("APP", "✅ passbot shutdown complete")
	case <-ctxShutdown.Done():
		logger.Warn("APP", "Bot handlers still running at shutdown deadline")
	}
}
