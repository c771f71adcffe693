package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tfibus/internal/config"
	"tfibus/internal/events"
	"tfibus/internal/gtfs"
	"tfibus/internal/handler"
	"tfibus/internal/kvcache"
	"tfibus/internal/metrics"
	"tfibus/internal/realtime"
	"tfibus/internal/server"
	"tfibus/internal/storage"
	"tfibus/internal/stops"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// CLI flags
	importOnly := flag.Bool("import-gtfs", false, "Download and import GTFS stops, then exit")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.GTFSDir, "gtfs-dir", cfg.GTFSDir, "Directory for GTFS data files")
	flag.Parse()
	cfg.ImportGTFS = *importOnly

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open database
	db, err := storage.Open(cfg.DSN(), logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	collector := metrics.NewCollector()

	// Set up GTFS scheduler
	downloader := gtfs.NewDownloader(cfg.GTFSURL, cfg.TFIAPIKey, cfg.GTFSDir, logger)
	scheduler := gtfs.NewScheduler(downloader, db, logger, collector.SetStopsLoaded)

	// Handle --import-gtfs flag
	if cfg.ImportGTFS {
		logger.Info("force importing GTFS stops")
		if err := scheduler.Update(ctx); err != nil {
			return fmt.Errorf("GTFS import: %w", err)
		}
		logger.Info("GTFS import complete")
		return nil
	}

	if n, err := db.CountStops(ctx); err == nil {
		collector.SetStopsLoaded(n)
	}

	cache, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cache.Close()

	upstream, err := realtime.NewClient(cfg.TFIBaseURL, cfg.FeedPath, cfg.TFIAPIKey,
		realtime.WithTimeout(cfg.UpstreamTimeout),
		realtime.WithRetries(cfg.UpstreamRetries, 500*time.Millisecond),
		realtime.WithClientLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("realtime client: %w", err)
	}

	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		publisher, err = events.Connect(cfg.NATSURL, cfg.NATSSubject, collector, logger)
		if err != nil {
			// Refresh events are optional; keep serving without them.
			logger.Warn("NATS unavailable, refresh events disabled", "error", err)
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	feeds := realtime.NewFeedCache(cache, upstream,
		realtime.WithTTL(cfg.FeedTTL),
		realtime.WithLogger(logger),
		realtime.WithRefreshListener(publisher),
		realtime.WithRecorder(collector),
	)

	resolver := stops.NewResolver(db,
		stops.WithLogger(logger),
		stops.WithMaxNearLimit(cfg.NearMaxLimit),
		stops.WithMatchHook(func(s stops.Strategy) { collector.ResolverMatch(string(s)) }),
	)

	h := handler.New(resolver, realtime.NewArrivals(feeds), db, handler.Limits{
		Search:  cfg.SearchLimit,
		Find:    cfg.FindLimit,
		NearMax: cfg.NearMaxLimit,
	}, feeds.TTL(), logger)

	opts := server.Options{Port: cfg.Port}
	if cfg.Metrics {
		opts.Metrics = collector.Handler()
	}
	srv := server.New(h, opts, db.HasData(ctx), logger)

	// Initial import runs in the background; the server answers 503 until it lands.
	go func() {
		if err := scheduler.EnsureData(ctx); err != nil {
			logger.Error("failed to ensure GTFS data", "error", err)
		}
		srv.SetReady()
		if err := scheduler.CheckAndUpdate(ctx); err != nil {
			logger.Error("daily GTFS check failed", "error", err)
		}
	}()

	// Start background GTFS update scheduler
	go scheduler.StartBackground(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (kvcache.Cache, error) {
	if cfg.RedisURL == "" {
		logger.Info("feed cache: in-process", "size", cfg.CacheSize)
		return kvcache.NewMemory(cfg.CacheSize, nil), nil
	}
	c, err := kvcache.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("feed cache: %w", err)
	}
	logger.Info("feed cache: redis")
	return c, nil
}
