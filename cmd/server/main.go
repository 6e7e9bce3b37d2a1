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

	"github.com/omni/gmp-mock-api/alerts"
	"github.com/omni/gmp-mock-api/chainclient"
	"github.com/omni/gmp-mock-api/config"
	"github.com/omni/gmp-mock-api/db"
	"github.com/omni/gmp-mock-api/logging"
	"github.com/omni/gmp-mock-api/presenter"
	"github.com/omni/gmp-mock-api/queue"
	"github.com/omni/gmp-mock-api/relay"
	"github.com/omni/gmp-mock-api/repository"
	"github.com/omni/gmp-mock-api/subscriber"
)

func configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "config.yml"
}

func main() {
	logger := logging.New()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.WithError(err).Warn("can't load .env file")
	}
	cfg, err := config.ReadConfigFromFile(configPath())
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		repo *repository.Repo
		q    *queue.RepoQueue
	)
	if cfg.DBConfig != nil {
		dbConn, err2 := db.ConnectToDBAndMigrate(ctx, cfg.DBConfig)
		if err2 != nil {
			logger.WithError(err2).Fatal("can't connect to database and apply migrations")
		}
		defer dbConn.Close()

		repo = repository.NewRepo(dbConn)
		q, err = queue.NewPostgresQueue(cfg.Queue, dbConn, repo.QueueItems, logger.WithField("service", "queue"))
		if err != nil {
			logger.WithError(err).Fatal("can't open work queue")
		}
	} else {
		logger.Warn("postgres is not configured, state is kept in memory")
		repo = repository.NewMemoryRepo()
		q = queue.NewRepoQueue(cfg.Queue, repo.QueueItems, queue.NewChanNotifier())
	}
	defer q.Close()

	client, err := chainclient.NewClient(cfg.Chain)
	if err != nil {
		logger.WithError(err).Fatal("can't create chain client")
	}

	correlator := relay.NewCorrelator(logger.WithField("service", "correlator"), repo)
	ingestor := relay.NewEventIngestor(logger.WithField("service", "ingestor"), repo, correlator)
	dispatcher := relay.NewDispatcher(logger.WithField("service", "dispatcher"), cfg.Relay, repo, client, q)
	pr := presenter.NewPresenter(logger.WithField("service", "presenter"), repo, ingestor, dispatcher)

	g, gctx := errgroup.WithContext(ctx)
	alertsProvider := alerts.NewRepoAlertsProvider(repo.Broadcasts, repo.QueueItems)
	alerts.NewAlertManager(logger.WithField("service", "alerts"), cfg.Alerts, q.Name(), alertsProvider).Start(gctx)
	g.Go(func() error {
		return presenter.ServeMetrics(gctx, logger, cfg.Metrics.Host)
	})
	g.Go(func() error {
		return pr.Serve(gctx, cfg.Presenter.Host)
	})
	if cfg.DBConfig == nil {
		// the in-memory queue can't be shared with a separate subscriber process
		sub := subscriber.NewSubscriber(logger.WithField("service", "subscriber"), cfg.Relay, repo, client, q)
		g.Go(func() error {
			return sub.Run(gctx)
		})
	}

	if err = g.Wait(); err != nil {
		logger.WithError(err).Error("server stopped with error")
	}
	logger.Info("waiting for in-flight broadcasts")
	dispatcher.Wait()
	logger.Info("server stopped")
}
