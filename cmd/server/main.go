package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/neexbeast/travelapi-search/internal/api"
	"github.com/neexbeast/travelapi-search/internal/cache"
	"github.com/neexbeast/travelapi-search/internal/config"
	"github.com/neexbeast/travelapi-search/internal/obs"
	"github.com/neexbeast/travelapi-search/internal/search"
	"github.com/neexbeast/travelapi-search/internal/storage"
	"github.com/neexbeast/travelapi-search/internal/upstream"
	"github.com/neexbeast/travelapi-search/migrations"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		slog.Error("loading configuration", "err", err)
		os.Exit(1)
	}

	log := newLogger(os.Stdout, cfg.Logging)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// migrationSource is the embedded schema unless a directory override is set.
func migrationSource(cfg config.DatabaseConfig) fs.FS {
	if cfg.MigrationsDir != "" {
		return os.DirFS(cfg.MigrationsDir)
	}
	return migrations.FS
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()

	// Connect to PostgreSQL.
	pool, err := storage.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	// Run migrations.
	applied, err := storage.RunMigrations(ctx, pool, migrationSource(cfg.Database))
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("migrations applied", "files", applied, "override_dir", cfg.Database.MigrationsDir)

	repo := storage.NewRepository(pool)

	// Static records go through Redis when it is configured.
	var (
		statics     search.StaticLookup = repo
		redisPinger api.Pinger
	)
	if cfg.Redis.URL != "" {
		redisClient, err := cache.Connect(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() { _ = redisClient.Close() }()

		staticCache := cache.NewStaticCache(redisClient, repo, cfg.Redis.StaticTTL, log)
		statics = staticCache
		redisPinger = staticCache
		log.Info("static data cache enabled", "ttl", cfg.Redis.StaticTTL)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(reg)

	// Wire dependencies.
	client := upstream.NewClient(upstream.Config{
		BaseURL:        cfg.Upstream.BaseURL,
		MaxAttempts:    cfg.Upstream.MaxAttempts,
		BaseDelay:      cfg.Upstream.BaseDelay,
		AttemptTimeout: cfg.Upstream.AttemptTimeout,
		WarmupTimeout:  cfg.Upstream.WarmupTimeout,
	})
	svc := search.NewService(search.Dependencies{
		Upstream: client,
		Cache:    search.NewCacheReader(repo, log),
		Enricher: search.NewEnricher(statics, cfg.Enrichment.ImageSize, cfg.Enrichment.MaxImages, log, metrics),
		Metrics:  metrics,
		Log:      log,
	})

	router := api.NewRouter(api.RouterConfig{
		Handlers:           api.NewHandlers(svc, log),
		BearerToken:        cfg.Server.BearerToken,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		DB:                 pool,
		Redis:              redisPinger,
		Metrics:            metrics,
		Log:                log,
	})

	// A search may spend every attempt timeout plus the backoff between them.
	writeTimeout := worstCaseSearch(cfg.Upstream) + 15*time.Second

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("server goroutine panicked", "recover", r)
				errCh <- fmt.Errorf("server panicked: %v", r)
			}
		}()
		log.Info("server starting",
			"port", cfg.Server.Port,
			"upstream", cfg.Upstream.BaseURL,
			"max_attempts", cfg.Upstream.MaxAttempts,
			"write_timeout", writeTimeout,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listening: %w", err)
		}
	}()

	select {
	case sig := <-quit:
		log.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("server shut down cleanly")
	return nil
}

// worstCaseSearch is the longest a single search can take upstream.
func worstCaseSearch(u config.UpstreamConfig) time.Duration {
	total := time.Duration(u.MaxAttempts) * u.AttemptTimeout
	for n := 1; n < u.MaxAttempts; n++ {
		total += u.BaseDelay * time.Duration(n)
	}
	return total
}
