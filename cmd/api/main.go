package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loudlane/cabinet-backend/api/routes"
	"github.com/loudlane/cabinet-backend/internal/backend"
	"github.com/loudlane/cabinet-backend/internal/fanout"
	"github.com/loudlane/cabinet-backend/internal/mailer"
	"github.com/loudlane/cabinet-backend/internal/notify"
	syncpkg "github.com/loudlane/cabinet-backend/internal/sync"
	"github.com/loudlane/cabinet-backend/pkg/config"
	"github.com/loudlane/cabinet-backend/pkg/db"
	"github.com/loudlane/cabinet-backend/pkg/instance"
	"github.com/loudlane/cabinet-backend/pkg/logger"
	"github.com/loudlane/cabinet-backend/pkg/metrics"
	"github.com/loudlane/cabinet-backend/pkg/migrate"
	"github.com/loudlane/cabinet-backend/pkg/pubsub"
	"github.com/loudlane/cabinet-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	registry := prometheus.NewRegistry()
	syncMetrics := metrics.NewSyncMetrics(registry)

	// A typed-nil *pubsub.Publisher must not reach the interface slot, or
	// the service's optional-publisher check never fires.
	var changesPublisher backend.Publisher
	if p := pubsubClient.ChangesPublisher(); p != nil {
		changesPublisher = p
	} else {
		logg.Warn(context.Background(), "changes topic not configured, row changes will not be published")
	}

	dataService, err := backend.NewGormService(dbClient.DB(), changesPublisher, cfg.Sync.PublishTimeout, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create data service", err)
		os.Exit(1)
	}

	feed, err := backend.NewPubsubFeed(pubsubClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create change feed", err)
		os.Exit(1)
	}

	session := syncpkg.NewSession(
		dataService,
		feed,
		notify.NewRedisReadState(redisClient),
		logg,
		syncMetrics,
		cfg.Sync,
	)
	if err := session.Start(context.Background()); err != nil {
		logg.Error(context.Background(), "failed to start sync session", err)
		os.Exit(1)
	}

	mail := fanout.New(mailer.FromConfig(cfg.Sendgrid, logg), logg, syncMetrics)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, dataService, session, mail, registry),
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		logg.Info(logg.WithField(ctx, "signal", sig.String()), "shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "http shutdown incomplete", err)
		}
		if err := session.Close(); err != nil {
			logg.Error(ctx, "sync session teardown incomplete", err)
		}
	}
}
