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

	"golang.org/x/sync/errgroup"

	"tg_shop_bot/internal/config"
	"tg_shop_bot/internal/feature/owner"
	"tg_shop_bot/internal/health"
	"tg_shop_bot/internal/logging"
	"tg_shop_bot/internal/schedule"
	"tg_shop_bot/internal/store"
	"tg_shop_bot/internal/telegram"
)

const (
	mongoConnectTimeout    = 10 * time.Second
	mongoIndexTimeout      = 5 * time.Second
	mongoDisconnectTimeout = 5 * time.Second
	bootstrapTimeout       = 5 * time.Second
	initializeTimeout      = 15 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":    "startup",
		"mongo_db": cfg.MongoDB,
	}).Info("configuration loaded")

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	mongoManager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		logger.WithError(err).Error("mongo connection error")
		fmt.Fprintf(os.Stderr, "mongo connection error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	if err := run(cfg, mongoManager); err != nil {
		logger.WithError(err).Error("bot stopped with error")
		fmt.Fprintf(os.Stderr, "bot error: %v\n", err)
		closeMongo(mongoManager)
		os.Exit(1)
	}

	closeMongo(mongoManager)
	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}

func run(cfg config.Config, mongoManager *store.Manager) error {
	logger := logging.Logger()

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	err := mongoManager.EnsureBaseIndexes(indexCtx)
	cancelIndexes()
	if err != nil {
		return fmt.Errorf("mongo index setup: %w", err)
	}

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	port, err := store.NewPort(mongoManager, logger)
	if err != nil {
		return fmt.Errorf("store setup: %w", err)
	}

	if err := bootstrap(cfg, mongoManager, port); err != nil {
		return err
	}

	dispatcher, err := telegram.NewDispatcher(port, logger,
		telegram.WithWorkers(cfg.DispatchWorkers),
		telegram.WithBroadcastInterval(cfg.BroadcastInterval),
	)
	if err != nil {
		return fmt.Errorf("dispatcher setup: %w", err)
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), initializeTimeout)
	err = dispatcher.Initialize(initCtx)
	cancelInit()
	switch {
	case errors.Is(err, telegram.ErrNotConfigured):
		logger.WithField("event", "bot_awaiting_token").Warn("bot token is not configured, waiting for admin config update")
	case err != nil:
		logger.WithField("event", "bot_initialize_failed").WithError(err).Warn("bot initialization failed, retrying on config refresh")
	}

	poller, err := telegram.NewPoller(dispatcher, dispatcher, logger)
	if err != nil {
		return fmt.Errorf("poller setup: %w", err)
	}

	scheduler, err := schedule.New(logger)
	if err != nil {
		return fmt.Errorf("scheduler setup: %w", err)
	}
	if err := scheduler.AddConfigRefresh(dispatcher, cfg.ConfigRefreshInterval); err != nil {
		return fmt.Errorf("scheduler setup: %w", err)
	}

	healthServer := health.NewServer(cfg.HTTPPort, mongoManager, dispatcher, logger)

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(signalCtx)
	group.Go(func() error { return dispatcher.Run(ctx) })
	group.Go(func() error { return poller.Run(ctx) })
	group.Go(func() error { return scheduler.Run(ctx) })
	group.Go(func() error { return healthServer.Run(ctx) })

	<-ctx.Done()
	if signalCtx.Err() != nil {
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping")
	}

	return group.Wait()
}

// bootstrap seeds the admin config, promotes the owner, and logs the current
// store totals.
func bootstrap(cfg config.Config, mongoManager *store.Manager, port *store.Port) error {
	logger := logging.Logger()

	ctx, cancel := context.WithTimeout(context.Background(), bootstrapTimeout)
	defer cancel()

	registrar := owner.NewRegistrar(mongoManager.Users(), port.AdminConfigs(), logger)

	if _, err := registrar.EnsureAdminConfig(ctx, owner.Seed{
		BotToken:      cfg.TelegramToken,
		AdminChatID:   cfg.AdminChatID,
		AdminUsername: cfg.AdminUsername,
	}); err != nil {
		return fmt.Errorf("admin config bootstrap: %w", err)
	}

	if cfg.BotOwnerID != 0 {
		if err := registrar.EnsureOwner(ctx, cfg.BotOwnerID); err != nil {
			return fmt.Errorf("owner bootstrap: %w", err)
		}
	}

	users, err := port.CountUsers(ctx)
	if err != nil {
		logger.WithField("event", "startup_stats_failed").WithError(err).Warn("failed to count users")
		return nil
	}
	pending, err := port.CountPendingPurchases(ctx)
	if err != nil {
		logger.WithField("event", "startup_stats_failed").WithError(err).Warn("failed to count pending purchases")
		return nil
	}

	logger.WithFields(logging.Fields{
		"event":             "startup_stats",
		"users":             users,
		"pending_purchases": pending,
	}).Info("store ready")

	return nil
}

func closeMongo(mongoManager *store.Manager) {
	logger := logging.Logger()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	defer cancel()

	if err := mongoManager.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("mongo disconnect error")
		return
	}
	logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
}
