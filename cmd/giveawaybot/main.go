package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"giveaway-bot/internal/analytics"
	"giveaway-bot/internal/bot"
	"giveaway-bot/internal/config"
	"giveaway-bot/internal/events"
	"giveaway-bot/internal/giveaway"
	"giveaway-bot/internal/httpapi"
	"giveaway-bot/internal/locale"
	"giveaway-bot/internal/lock"
	"giveaway-bot/internal/modules/audit"
	"giveaway-bot/internal/storage"
	"giveaway-bot/internal/storage/postgres"

	"go.uber.org/zap"
)

// datastore is satisfied by both the sqlite and the postgres store.
type datastore interface {
	giveaway.Store
	bot.SettingsStore
	audit.Store
	analytics.Store
	Ping(ctx context.Context) error
	Close()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("storage init failed", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer store.Close()

	loc, err := locale.New(cfg.DefaultLanguage, map[string]int{
		"giveaway": cfg.EmbedColors.Giveaway,
		"ended":    cfg.EmbedColors.Ended,
		"error":    cfg.EmbedColors.Error,
	}, logger)
	if err != nil {
		logger.Fatal("locale init failed", zap.Error(err))
	}

	auditLogger := audit.NewLogger(store, logger)
	analyticsEngine := analytics.New(store)

	publishers := events.Multi{auditLogger}
	var natsPublisher *events.NATSPublisher
	if cfg.NATS.URL != "" {
		natsPublisher, err = events.ConnectNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			logger.Fatal("nats connect failed", zap.Error(err))
		}
		publishers = append(publishers, natsPublisher)
	}

	claimTTL := time.Duration(cfg.Redis.ClaimTTLSeconds) * time.Second
	checks := map[string]httpapi.Check{"database": store.Ping}
	var claimer giveaway.Claimer = lock.NewLocal(claimTTL)
	var redisLock *lock.Redis
	if cfg.Redis.Addr != "" {
		redisLock, err = lock.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, claimTTL)
		if err != nil {
			logger.Fatal("redis connect failed", zap.Error(err))
		}
		claimer = redisLock
		checks["redis"] = redisLock.Ping
	}

	botSvc, err := bot.New(cfg, logger, store, loc, auditLogger, analyticsEngine)
	if err != nil {
		logger.Fatal("bot init failed", zap.Error(err))
	}

	manager := giveaway.NewManager(store, botSvc.Messenger(), logger, giveaway.Options{
		MaxWinners:     cfg.Giveaway.MaxWinners,
		MaxDuration:    time.Duration(cfg.Giveaway.MaxDurationDays) * 24 * time.Hour,
		ResolveTimeout: time.Duration(cfg.Giveaway.ResolveTimeoutSecs) * time.Second,
		RetryDelay:     max(claimTTL, time.Minute),
	})
	manager.WithClaimer(claimer)
	manager.WithPublisher(publishers)
	botSvc.SetGiveaways(manager)

	if err := botSvc.Start(); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started")

	var server *httpapi.Server
	if cfg.Health.Enabled {
		server = httpapi.New(cfg.Health.Addr, manager, checks, logger)
		server.Start()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown failed", zap.Error(err))
		}
	}
	manager.Stop()
	botSvc.Close(shutdownCtx)
	if natsPublisher != nil {
		natsPublisher.Close()
	}
	if redisLock != nil {
		_ = redisLock.Close()
	}
}

func openStore(ctx context.Context, cfg config.Config) (datastore, error) {
	if cfg.Database.Driver == "postgres" {
		if err := postgres.Migrate(cfg.Database.URL); err != nil {
			return nil, err
		}
		store, err := postgres.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
