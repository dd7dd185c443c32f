package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-mod.ewintr.nl/ytdigest/config"
	"go-mod.ewintr.nl/ytdigest/deliver"
	"go-mod.ewintr.nl/ytdigest/fetch"
	"go-mod.ewintr.nl/ytdigest/handler"
	"go-mod.ewintr.nl/ytdigest/model"
	"go-mod.ewintr.nl/ytdigest/process"
	"go-mod.ewintr.nl/ytdigest/run"
	"go-mod.ewintr.nl/ytdigest/storage"
	"golang.org/x/exp/slog"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const youtubeRate = 5

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("service failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	logger.Info("service stopped")
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ytClient, err := youtube.NewService(ctx, option.WithAPIKey(cfg.YoutubeAPIKey))
	if err != nil {
		return fmt.Errorf("unable to create youtube service: %w", err)
	}
	ytLimiter := rate.NewLimiter(rate.Limit(youtubeRate), 1)

	var (
		registry fetch.ChannelRegistry
		source   fetch.VideoSource
		resolver fetch.ChannelResolver
	)
	switch cfg.ChannelSource {
	case config.SourceMiniflux:
		mflx := fetch.NewMiniflux(cfg.Miniflux, logger)
		registry, source = mflx, mflx
	default:
		yt := fetch.NewYoutube(ytClient, ytLimiter, logger)
		registry, source, resolver = fetch.NewConfigRegistry(cfg.TrackedChannels, yt, logger), yt, yt
	}

	worker := process.NewWorker(process.NewProcessors(
		process.NewYoutubeMetadata(ytClient, ytLimiter),
		process.NewTranscript(&http.Client{Timeout: 30 * time.Second}, process.DefaultWatchURL, rate.NewLimiter(rate.Limit(cfg.TranscriptRate), 1), logger),
		process.NewOpenAISummarizer(process.NewOpenAIClient(cfg.OpenAI), cfg.OpenAI.Model),
	), logger)

	var dispatcher deliver.Dispatcher = deliver.NewLogDispatcher(logger)
	if cfg.MailEnabled() {
		mailer, err := deliver.NewMailer(cfg.SMTP, logger)
		if err != nil {
			return fmt.Errorf("unable to create mailer: %w", err)
		}
		dispatcher = mailer
	}

	coord := run.NewCoordinator(store, registry, source, worker, dispatcher, cfg.Run, logger)
	if cfg.WeaviateHost != "" {
		index, err := storage.NewWeaviate(cfg.WeaviateHost, cfg.WeaviateApiKey, cfg.OpenAI.ApiKey)
		if err != nil {
			return fmt.Errorf("unable to create weaviate client: %w", err)
		}
		if err := index.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("unable to prepare weaviate schema: %w", err)
		}
		coord.WithIndex(index)
	}

	if cfg.RunMode == config.ModeOnce {
		report, err := coord.RunOnce(ctx, time.Now())
		if err != nil {
			return err
		}
		if report.Delivery == model.DeliveryFailed {
			return errors.New(report.DeliveryError)
		}
		return nil
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.APIPort),
		Handler: handler.NewServer(store, registry, resolver, cfg.Run.Lookback, coord, logger),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.String("err", err.Error()))
		}
	}()
	logger.Info("http server started", slog.Int("port", cfg.APIPort))

	logger.Info("scheduler started", slog.Duration("interval", cfg.RunInterval))
	run.NewScheduler(coord, cfg.RunInterval, logger).Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config) (*storage.SQLStore, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.DatabaseDriver {
	case storage.DialectSQLite:
		db, err = storage.OpenSQLite(cfg.SQLitePath)
	default:
		db, err = storage.OpenPostgres(cfg.Postgres)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open %s database: %w", cfg.DatabaseDriver, err)
	}

	store, err := storage.NewSQLStore(ctx, db, cfg.DatabaseDriver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to prepare store: %w", err)
	}

	return store, nil
}
