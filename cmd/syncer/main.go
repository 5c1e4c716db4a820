package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"feedsync/internal/config"
	"feedsync/internal/domain"
	"feedsync/internal/fetch/rss"
	"feedsync/internal/fetch/youtube"
	"feedsync/internal/publisher"
	"feedsync/internal/scheduler"
	"feedsync/internal/service"
	"feedsync/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	feedStore := postgres.NewFeedStore(db)
	articleStore := postgres.NewArticleStore(db)
	channelStore := postgres.NewChannelStore(db)
	videoStore := postgres.NewVideoStore(db)
	categoryStore := postgres.NewCategoryStore(db)
	txManager := postgres.NewTransactionManager(db)

	fetcher := rss.New(httpClient(cfg.Fetch), cfg.Fetch.UserAgent)

	reconciler := service.NewReconciler(
		feedStore,
		articleStore,
		videoStore,
		txManager,
		rabbitMQ,
		logger,
	)

	feedService := service.NewFeedService(
		feedStore,
		categoryStore,
		fetcher,
		reconciler,
		txManager,
		cfg.Refresh.MinInterval,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var channelService *service.ChannelService
	if cfg.YouTube.APIKey != "" {
		ytClient, err := youtube.NewClient(ctx, cfg.YouTube.APIKey, cfg.YouTube.PageSize, logger)
		if err != nil {
			logger.Error("failed to create youtube client", "error", err)
			os.Exit(1)
		}
		importer := service.NewUploadImporter(ytClient, reconciler, cfg.YouTube.BatchSize, logger)
		channelService = service.NewChannelService(channelStore, ytClient, importer, reconciler, logger)
	} else {
		logger.Warn("youtube api key not set, channel refresh disabled")
	}

	refresher := &combinedRefresher{
		feeds:    feedService,
		channels: channelService,
	}

	sched := scheduler.NewScheduler(refresher, cfg.Refresh.CronSpec, cfg.Refresh.Timeout, logger)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting feedsync",
		"cron_spec", cfg.Refresh.CronSpec,
		"min_refresh_interval", cfg.Refresh.MinInterval,
	)

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

// combinedRefresher runs the feed refresh and, when configured, the
// channel refresh in one scheduled pass, folding both outcomes into
// one report.
type combinedRefresher struct {
	feeds    *service.FeedService
	channels *service.ChannelService
}

func (r *combinedRefresher) RefreshAll(ctx context.Context) (*domain.RefreshReport, error) {
	report, err := r.feeds.RefreshAll(ctx)
	if err != nil {
		return nil, err
	}
	if r.channels != nil {
		report.NewVideos, report.ChannelsFailed = r.channels.RefreshAllChannels(ctx)
	}
	return report, nil
}

// A fixed request timeout keeps a hung upstream from stalling a whole
// refresh pass.
func httpClient(cfg config.FetchConfig) *http.Client {
	return &http.Client{Timeout: cfg.Timeout}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
