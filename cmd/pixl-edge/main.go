package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/smartpixl/smartpixl/internal/config"
	"github.com/smartpixl/smartpixl/internal/datacenter"
	"github.com/smartpixl/smartpixl/internal/db"
	"github.com/smartpixl/smartpixl/internal/detect"
	"github.com/smartpixl/smartpixl/internal/edge"
	"github.com/smartpixl/smartpixl/internal/geo"
	"github.com/smartpixl/smartpixl/internal/geocache"
	"github.com/smartpixl/smartpixl/internal/handoff"
	pixlhttp "github.com/smartpixl/smartpixl/internal/http"
	"github.com/smartpixl/smartpixl/internal/metrics"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: pixl-edge <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve         Start the pixel edge server")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
}

func parseFlags(args []string) (configPath string, logLevel string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		}
	}
	return
}

func loadConfig(args []string) (*config.Config, *zap.Logger) {
	configPath, logLevelOverride := parseFlags(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if logLevelOverride != "" {
		cfg.Service.LogLevel = logLevelOverride
	}

	logger := initLogger(cfg.Service.LogLevel)
	return cfg, logger
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func runServe() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting pixl-edge",
		zap.String("instance_id", cfg.Service.InstanceID),
		zap.String("pixel_listen", cfg.Edge.PixelListen),
		zap.String("endpoint", cfg.Edge.Endpoint),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The geo cache refills from the relational store; the request path
	// itself never touches it.
	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	geoCache := geocache.New(geo.NewStore(pool), logger.Named("geocache"))

	// Detector histories share nothing with each other; each tracker owns a
	// TTL map sized for its window.
	fingerprints := detect.NewFingerprintTracker(gocache.New(24*time.Hour, 10*time.Minute))
	behavior := detect.NewBehaviorTracker(gocache.New(10*time.Minute, time.Minute))

	matcher := datacenter.NewMatcher()
	refresher := datacenter.NewRefresher(matcher,
		cfg.Enrich.AWSRangesURL, cfg.Enrich.GCPRangesURL,
		cfg.Enrich.CidrRefreshInterval, logger.Named("datacenter"))

	drainDeadline := time.Duration(cfg.Service.ShutdownTimeoutSeconds) * time.Second

	queue := handoff.NewQueue("primary", cfg.Edge.QueueCapacity)
	spill := handoff.NewSpill(cfg.Edge.FailoverDir, cfg.Edge.FailoverQueueCapacity, logger.Named("spill"))
	writer := handoff.NewWriter(queue, spill, handoff.UnixDialer(cfg.Edge.Endpoint),
		cfg.Edge.ReconnectMinBackoff, cfg.Edge.ReconnectMaxBackoff, logger.Named("handoff"))

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); geoCache.Run(ctx) }()
	go func() { defer wg.Done(); refresher.Run(ctx) }()
	// The writer diverts its shutdown flush into the spill queue and closes
	// it last, so the spill consumer must not stop on ctx.
	go func() { defer wg.Done(); spill.Run(context.Background(), drainDeadline) }()
	go func() { defer wg.Done(); writer.Run(ctx, drainDeadline) }()

	enricher := edge.NewEnricher(fingerprints, behavior, matcher, geoCache, logger.Named("edge.enrich"))
	server := edge.NewServer(cfg.Edge.PixelListen, queue, enricher, logger.Named("edge"))
	if err := server.Start(); err != nil {
		logger.Fatal("failed to start pixel server", zap.Error(err))
	}

	opsServer := pixlhttp.NewServer(cfg.Service.OpsListen, []pixlhttp.ReadyCheck{
		{Name: "postgres", Check: pool.Ping},
		{Name: "handoff", Check: func(_ context.Context) error {
			if !writer.Connected() {
				return fmt.Errorf("handoff stream down")
			}
			return nil
		}},
	}, logger.Named("ops"))
	if err := opsServer.Start(); err != nil {
		logger.Fatal("failed to start ops server", zap.Error(err))
	}

	logger.Info("pixl-edge started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownTimeout := time.Duration(cfg.Service.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting pixel traffic first so no hit is enqueued after the
	// writer starts draining.
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("pixel server shutdown error", zap.Error(err))
	}
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown error", zap.Error(err))
	}

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("edge drained gracefully")
	case <-time.After(shutdownTimeout + drainDeadline):
		logger.Warn("shutdown timeout reached, some goroutines may not have finished")
	}

	logger.Info("pixl-edge stopped")
}
