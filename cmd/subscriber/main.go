package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/omni/gmp-mock-api/chainclient"
	"github.com/omni/gmp-mock-api/config"
	"github.com/omni/gmp-mock-api/db"
	"github.com/omni/gmp-mock-api/logging"
	"github.com/omni/gmp-mock-api/presenter"
	"github.com/omni/gmp-mock-api/queue"
	"github.com/omni/gmp-mock-api/repository"
	"github.com/omni/gmp-mock-api/subscriber"
)

func main() {
	logger := logging.New()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.WithError(err).Warn("can't load .env file")
	}
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yml"
	}
	cfg, err := config.ReadConfigFromFile(path)
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel)
	if cfg.DBConfig == nil {
		logger.Fatal("subscriber requires postgres, the server runs it in-process when state is kept in memory")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbConn, err := db.ConnectToDBAndMigrate(ctx, cfg.DBConfig)
	if err != nil {
		logger.WithError(err).Fatal("can't connect to database and apply migrations")
	}
	defer dbConn.Close()

	repo := repository.NewRepo(dbConn)
	q, err := queue.NewPostgresQueue(cfg.Queue, dbConn, repo.QueueItems, logger.WithField("service", "queue"))
	if err != nil {
		logger.WithError(err).Fatal("can't open work queue")
	}
	defer q.Close()

	client, err := chainclient.NewClient(cfg.Chain)
	if err != nil {
		logger.WithError(err).Fatal("can't create chain client")
	}
	sub := subscriber.NewSubscriber(logger.WithField("service", "subscriber"), cfg.Relay, repo, client, q)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return presenter.ServeMetrics(gctx, logger, cfg.Metrics.Host)
	})
	g.Go(func() error {
		return sub.Run(gctx)
	})
	if err = g.Wait(); err != nil {
		logger.WithError(err).Error("subscriber stopped with error")
	}
	logger.Info("subscriber stopped")
}
