package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/smartpixl/smartpixl/internal/config"
	"github.com/smartpixl/smartpixl/internal/db"
	"github.com/smartpixl/smartpixl/internal/enrich"
	"github.com/smartpixl/smartpixl/internal/geo"
	"github.com/smartpixl/smartpixl/internal/handoff"
	"github.com/smartpixl/smartpixl/internal/hit"
	pixlhttp "github.com/smartpixl/smartpixl/internal/http"
	"github.com/smartpixl/smartpixl/internal/maintenance"
	"github.com/smartpixl/smartpixl/internal/metrics"
	"github.com/smartpixl/smartpixl/internal/pipeline"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "migrate":
		runMigrate()
	case "maintenance":
		runMaintenance()
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: pixl-forge <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve         Start the enrichment service")
	fmt.Println("  migrate       Run database migrations")
	fmt.Println("  maintenance   Run partition maintenance (create new, drop old)")
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

// migrationsDir returns the path to the migrations directory relative to the binary.
func migrationsDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(exe), "migrations")
}

func runServe() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting pixl-forge",
		zap.String("instance_id", cfg.Service.InstanceID),
		zap.String("endpoint", cfg.Forge.Endpoint),
		zap.Int("workers", cfg.Forge.WorkerCount),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	// Ensure partitions exist on startup.
	pm := maintenance.NewPartitionManager(pool, cfg.Retention.Days, cfg.Retention.Timezone, logger)
	if err := pm.CreatePartitions(ctx); err != nil {
		logger.Fatal("failed to create partitions on startup", zap.Error(err))
	}

	geoStore := geo.NewStore(pool)

	// --- Enrichment steps ---
	offlineGeo := enrich.NewOfflineGeo(cfg.Enrich.GeoIPCityPath, cfg.Enrich.GeoIPASNPath, logger.Named("enrich.geolite"))
	defer offlineGeo.Close()

	onlineGeo := enrich.NewOnlineGeo(geoStore, cfg.Enrich.OnlineGeoURL,
		cfg.Enrich.OnlineGeoMaxStaleDays, cfg.Enrich.OnlineGeoRPM, logger.Named("enrich.ipapi"))
	onlineGeo.Warm(ctx)

	replay, err := enrich.NewReplay()
	if err != nil {
		logger.Fatal("failed to build replay cache", zap.Error(err))
	}

	steps := pipeline.Steps(
		enrich.BotUA{},
		enrich.NewUAParse(),
		enrich.NewRDNS(cfg.Enrich.RDNSTimeout),
		offlineGeo,
		onlineGeo,
		enrich.NewWhois(cfg.Enrich.WhoisServer, cfg.Enrich.WhoisTimeout),
		enrich.NewSessions(),
		enrich.NewCrossCustomer(),
		replay,
		enrich.NewDeadInternet(),
	)

	// --- Intake: receiver + failover catch-up feeding the input queue ---
	input := handoff.NewQueue("forge_input", cfg.Forge.InputQueueSize)
	receiver := handoff.NewReceiver(cfg.Forge.Endpoint, cfg.Forge.MaxConns, input, logger.Named("receiver"))
	catchup := handoff.NewCatchup(cfg.Forge.FailoverDir, cfg.Forge.CatchupInterval,
		cfg.Forge.ArchiveCompress, input, logger.Named("catchup"))

	out := make(chan *hit.Hit, cfg.Ingest.QueueSize)
	pl := pipeline.New(steps, input, out, cfg.Forge.WorkerCount, logger.Named("pipeline"))

	drainDeadline := time.Duration(cfg.Service.ShutdownTimeoutSeconds) * time.Second
	writer := pipeline.NewBulkWriter(pool, cfg.Ingest.BatchSize, cfg.Ingest.FlushIntervalMs,
		drainDeadline, logger.Named("writer"))

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		if err := receiver.Run(ctx); err != nil {
			logger.Error("receiver stopped", zap.Error(err))
		}
	}()
	go func() { defer wg.Done(); catchup.Run(ctx) }()
	go func() {
		defer wg.Done()
		pl.Run(ctx)
		close(out)
	}()
	go func() { defer wg.Done(); writer.Run(ctx, out) }()

	// --- Ops server ---
	opsServer := pixlhttp.NewServer(cfg.Service.OpsListen, []pixlhttp.ReadyCheck{
		{Name: "postgres", Check: pool.Ping},
	}, logger.Named("ops"))
	if err := opsServer.Start(); err != nil {
		logger.Fatal("failed to start ops server", zap.Error(err))
	}

	logger.Info("pixl-forge started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownTimeout := time.Duration(cfg.Service.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

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
		logger.Info("pipeline stopped gracefully")
	case <-time.After(shutdownTimeout + drainDeadline):
		logger.Warn("shutdown timeout reached, some goroutines may not have finished")
	}

	logger.Info("pixl-forge stopped")
}

func runMigrate() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	logger.Info("running migrations",
		zap.String("dsn", redactDSN(cfg.Postgres.DSN)),
	)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, migrationsDir(), logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	logger.Info("migrations complete")
}

func runMaintenance() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	logger.Info("running partition maintenance",
		zap.Int("retention_days", cfg.Retention.Days),
		zap.String("timezone", cfg.Retention.Timezone),
	)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	pm := maintenance.NewPartitionManager(pool, cfg.Retention.Days, cfg.Retention.Timezone, logger)
	if err := pm.Run(ctx); err != nil {
		logger.Fatal("maintenance failed", zap.Error(err))
	}

	logger.Info("partition maintenance complete")
}

func redactDSN(dsn string) string {
	if !strings.Contains(dsn, "://") {
		// keyword=value format: redact the password=... portion
		re := regexp.MustCompile(`password\s*=\s*\S+`)
		return re.ReplaceAllString(dsn, "password=***")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
