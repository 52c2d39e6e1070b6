package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ilramdhan/doorcalc/config"
	"github.com/ilramdhan/doorcalc/internal/api"
	"github.com/ilramdhan/doorcalc/internal/infrastructure/cache"
	"github.com/ilramdhan/doorcalc/internal/infrastructure/definitions"
	"github.com/ilramdhan/doorcalc/internal/infrastructure/persistence"
	"github.com/ilramdhan/doorcalc/internal/modules/catalog"
	"github.com/ilramdhan/doorcalc/pkg/database"
	"github.com/ilramdhan/doorcalc/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Calculator definitions
	store, err := definitions.NewStore(cfg.Calculator.DefinitionsDir)
	if err != nil {
		log.Error("failed to load calculator definitions", slog.String("dir", cfg.Calculator.DefinitionsDir), slog.Any("error", err))
		os.Exit(1)
	}

	// Database connection
	pool, err := database.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Catalog cache and data source
	catalogCache, err := cache.New(ctx, cache.Options{
		Backend:       cfg.Catalog.CacheBackend,
		RedisAddr:     cfg.Catalog.RedisAddr,
		RedisPassword: cfg.Catalog.RedisPassword,
		RedisDB:       cfg.Catalog.RedisDB,
	})
	if err != nil {
		log.Error("failed to create catalog cache", slog.String("backend", cfg.Catalog.CacheBackend), slog.Any("error", err))
		os.Exit(1)
	}
	if mem, ok := catalogCache.(*cache.Memory); ok {
		go sweep(ctx, mem, cfg.Catalog.CacheTTL)
	}

	source := catalog.NewDataSource(
		persistence.NewCatalogRepository(pool),
		catalog.WithCache(catalogCache),
		catalog.WithTTL(cfg.Catalog.CacheTTL),
		catalog.WithDefaultLimit(cfg.Catalog.DefaultLimit),
		catalog.WithLogger(log),
	)

	app := api.NewApp(api.Server{
		Calculators: store,
		Catalog:     source,
		Calculator:  cfg.Calculator,
		Logger:      log,
		Ping:        func(ctx context.Context) error { return database.Ping(ctx, pool) },
		AccessLog:   true,
	})

	// Graceful shutdown; SIGHUP reloads definitions
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		for sig := range signals {
			if sig == syscall.SIGHUP {
				if err := store.Reload(); err != nil {
					log.Error("failed to reload definitions", slog.Any("error", err))
				} else {
					log.Info("definitions reloaded")
				}
				continue
			}
			log.Info("shutting down server")
			_ = app.Shutdown()
			return
		}
	}()

	log.Info("starting API server", slog.String("port", cfg.App.Port), slog.String("env", cfg.App.Env))
	if err := app.Listen(":" + cfg.App.Port); err != nil {
		log.Error("server stopped", slog.Any("error", err))
		closeCache(catalogCache)
		os.Exit(1)
	}
	closeCache(catalogCache)
}

// sweep drops expired memory-cache entries once per TTL
func sweep(ctx context.Context, mem *cache.Memory, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := mem.Sweep(); n > 0 {
				slog.Debug("swept catalog cache", slog.Int("expired", n))
			}
		}
	}
}

func closeCache(c cache.Cache) {
	if closer, ok := c.(io.Closer); ok {
		_ = closer.Close()
	}
}
