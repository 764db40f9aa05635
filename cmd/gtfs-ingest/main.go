package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/theoremus-urban-solutions/gtfsrt-ingest/config"
	"github.com/theoremus-urban-solutions/gtfsrt-ingest/gtfs"
	"github.com/theoremus-urban-solutions/gtfsrt-ingest/gtfsrt"
	"github.com/theoremus-urban-solutions/gtfsrt-ingest/health"
	"github.com/theoremus-urban-solutions/gtfsrt-ingest/ingest"
	"github.com/theoremus-urban-solutions/gtfsrt-ingest/internal"
	"github.com/theoremus-urban-solutions/gtfsrt-ingest/internal/scheduler"
	"github.com/theoremus-urban-solutions/gtfsrt-ingest/store"
)

func main() {
	mode := flag.String("mode", "serve", "serve|oneshot")
	configPath := flag.String("config", "", "config file (overrides "+config.EnvConfigPath+")")
	vehiclePositions := flag.String("vehiclePositions", "", "GTFS-RT VehiclePositions URL (overrides config)")
	bundle := flag.Bool("bundle", false, "oneshot: also load the static bundles")
	flag.Parse()

	if *configPath != "" {
		_ = os.Setenv(config.EnvConfigPath, *configPath)
	}
	if err := config.LoadAppConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Config
	if *vehiclePositions != "" {
		cfg.GTFSRT.VehiclePositionsURL = *vehiclePositions
	}
	logger := internal.InitLogging(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch *mode {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "oneshot":
		err = oneshot(ctx, cfg, logger, *bundle)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		logger.Error("exiting", "error", err)
		os.Exit(1)
	}
}

// app holds the wired pipelines.
type app struct {
	store   *store.Store
	poller  *ingest.Poller
	bundles *ingest.BundleLoader
}

func build(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) (*app, error) {
	st, err := store.Open(ctx, cfg.Store, store.Options{BatchSize: cfg.GTFS.BatchSize, Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	registry, err := gtfsrt.NewRegistry()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	rtClient := gtfsrt.NewClient(gtfsrt.ClientOptions{
		Timeout:   cfg.GTFSRT.Timeout(),
		UserAgent: cfg.HTTP.UserAgent,
		RateLimit: cfg.HTTP.RateLimit,
		RateBurst: cfg.HTTP.RateBurst,
	})
	retryDelay := cfg.Retry.RetryDelay()
	if retryDelay == 0 {
		retryDelay = -1 // immediate retry; zero selects the poller default
	}
	a := &app{
		store: st,
		poller: ingest.NewPoller(rtClient, gtfsrt.NewDecoder(registry), st, ingest.PollerOptions{
			MaxRetryAttempts: cfg.Retry.MaxRetryAttempts,
			RetryDelay:       retryDelay,
			Logger:           logger,
		}),
	}

	if cfg.GTFS.StaticURL != "" {
		bundleClient := gtfs.NewClient(gtfs.ClientOptions{
			StaticURL: cfg.GTFS.StaticURL,
			Timeout:   cfg.GTFS.Timeout(),
			UserAgent: cfg.HTTP.UserAgent,
			RateLimit: cfg.HTTP.RateLimit,
			RateBurst: cfg.HTTP.RateBurst,
		})
		a.bundles = ingest.NewBundleLoader(bundleClient, st, ingest.BundleOptions{
			Categories:      cfg.GTFS.Categories,
			ExcludedEntries: cfg.GTFS.ExcludedEntries,
			Concurrency:     cfg.GTFS.TableLoadConcurrency,
			Logger:          logger,
		})
	}
	return a, nil
}

func serve(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) error {
	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.store.Close()

	monitor := health.NewMonitor()
	srv := health.NewServer(cfg.Server.Port, monitor, a.store, logger)
	srv.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		} else {
			logger.Info("server shut down successfully")
		}
	}()

	// keep the interface value nil when no bundle is configured
	var bundles scheduler.BundleRunner
	if a.bundles != nil {
		bundles = a.bundles
	}
	sched, err := scheduler.New(a.poller, bundles, monitor, scheduler.Options{
		FeedURL:                cfg.GTFSRT.VehiclePositionsURL,
		PollInterval:           cfg.GTFSRT.PollInterval(),
		BundleSchedule:         cfg.GTFS.Schedule,
		LoadBundleOnStart:      cfg.GTFS.LoadOnStart,
		MaxConsecutiveFailures: cfg.Scheduler.MaxConsecutiveFailures,
		HealthLogInterval:      cfg.Scheduler.HealthLogInterval(),
		Logger:                 logger,
	})
	if err != nil {
		return err
	}

	logger.Info("gtfs ingest started",
		"vehicle_positions_url", cfg.GTFSRT.VehiclePositionsURL,
		"poll_interval", cfg.GTFSRT.PollInterval(),
		"store_driver", cfg.Store.Driver)
	err = sched.Run(ctx)
	if errors.Is(err, scheduler.ErrTooManyFailures) {
		return err
	}
	logger.Info("shutdown signal received")
	return err
}

func oneshot(ctx context.Context, cfg config.AppConfig, logger *slog.Logger, loadBundle bool) error {
	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.store.Close()

	if loadBundle {
		if a.bundles == nil {
			return errors.New("bundle requested but gtfs.staticURL is not configured")
		}
		if out := a.bundles.LoadAll(ctx); !out.Success {
			return out.Err
		}
	}
	if out := a.poller.FetchAndStore(ctx, cfg.GTFSRT.VehiclePositionsURL); !out.Success {
		return out.Err
	}
	return nil
}
