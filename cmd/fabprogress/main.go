package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"fabprogress/internal/config"
	"fabprogress/internal/featuregate"
	"fabprogress/internal/lock"
	"fabprogress/internal/messaging"
	"fabprogress/internal/service/dossier"
	"fabprogress/internal/service/progress"
	"fabprogress/internal/storage/sqlstore"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustConfig()

	log := setupLogger(cfg.Env, cfg.ErrorLog)

	store, err := sqlstore.New(cfg.Database)
	if err != nil {
		log.Error("failed to open db", slog.String("driver", cfg.Database.Driver), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	locker, closeLocker, err := setupLocker(ctx, cfg.Redis, log)
	if err != nil {
		log.Error("failed to connect redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeLocker()

	var topic string
	if cfg.Kafka.Enabled {
		publisher, err := messaging.NewPublisher(ctx, log, cfg.Kafka)
		if err != nil {
			log.Error("failed to connect kafka", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer publisher.Close()

		topic = cfg.Kafka.Topic
		drainer := messaging.NewOutboxDrainer(log, store, publisher, cfg.Kafka)
		go drainer.Run(ctx)
	}

	progressService := progress.NewService(log, store, locker, progress.Options{
		Topic:           topic,
		ConflictRetries: cfg.Engine.ConflictRetries,
		LockTimeout:     cfg.Engine.LockTimeout,
	})
	dossierGenerator := dossier.NewGenerator(progressService)
	gate := featuregate.NewStatic(cfg.Features)

	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      routes(cfg, log, progressService, dossierGenerator, gate),
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout + 10*time.Second,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("server started", slog.String("address", cfg.Address), slog.String("db", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed start server", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.String("error", err.Error()))
	}

	log.Info("server stopped")
}

// setupLocker returns the Redis lock when an address is configured so that
// several instances share it, and an in-process lock otherwise.
func setupLocker(ctx context.Context, cfg config.Redis, log *slog.Logger) (progress.Locker, func(), error) {
	if cfg.Address == "" {
		log.Info("using in-process assembly lock")
		return lock.NewLocal(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, err
	}

	log.Info("using redis assembly lock", slog.String("address", cfg.Address))
	return lock.NewRedis(client, cfg.LockTTL, log), func() { client.Close() }, nil
}
