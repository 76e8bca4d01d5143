package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/storepulse/backend/internal/application/dashboard"
	"github.com/storepulse/backend/internal/application/integration"
	"github.com/storepulse/backend/internal/infrastructure/cache"
	"github.com/storepulse/backend/internal/infrastructure/config"
	"github.com/storepulse/backend/internal/infrastructure/ecommerce"
	"github.com/storepulse/backend/internal/infrastructure/logger"
	"github.com/storepulse/backend/internal/infrastructure/persistence"
	"github.com/storepulse/backend/internal/infrastructure/scheduler"
	"github.com/storepulse/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting StorePulse",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("shop", cfg.Storefront.ShopDomain),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	metrics, err := telemetry.NewPipelineMetrics(telemetry.PipelineMetricsConfig{
		Meter:  meterProvider.Meter("storepulse/pipeline"),
		Logger: log,
	})
	if err != nil {
		log.Fatal("Failed to create pipeline metrics", zap.Error(err))
	}

	// Database
	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         tracerProvider.Enabled() && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        "postgresql",
	}, log)
	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithLogger(log.Named("db")),
		persistence.WithTracing(dbTracing),
		persistence.WithSlowQueryThreshold(cfg.Telemetry.DBSlowQueryThresh),
	)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connected")
	repos := db.Repositories()

	// Cache
	recordCache := cache.NewExpiringCache(
		cache.WithDefaultTTL(cfg.Cache.DefaultTTL),
		cache.WithSweepInterval(cfg.Cache.SweepInterval),
		cache.WithLogger(log.Named("cache")),
	)
	recordCache.Start()
	if err := metrics.ObserveCache(func() (int64, int64, int64) {
		s := recordCache.Stats()
		return s.Hits, s.Misses, int64(s.Size)
	}); err != nil {
		log.Warn("Failed to register cache gauges", zap.Error(err))
	}

	var mirror *cache.SnapshotMirror
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			// The mirror is optional; the in-process cache serves reads either way
			log.Warn("Redis unavailable, snapshot mirror disabled", zap.Error(err))
		} else {
			defer func() {
				if err := client.Close(); err != nil {
					log.Warn("Error closing Redis client", zap.Error(err))
				}
			}()
			mirror = cache.NewSnapshotMirror(client, cfg.Redis.KeyPrefix)
			log.Info("Snapshot mirror enabled", zap.String("prefix", cfg.Redis.KeyPrefix))
		}
	}

	// Storefront
	shopifyConfig := ecommerce.NewShopifyConfig(cfg.Storefront.ShopDomain, cfg.Storefront.AccessToken)
	shopifyConfig.APIVersion = cfg.Storefront.APIVersion
	shopifyConfig.APIBaseURL = cfg.Storefront.APIBaseURL
	shopifyConfig.TimeoutSeconds = cfg.Storefront.TimeoutSeconds
	shopifyConfig.PageSize = cfg.Storefront.PageSize
	shopifyConfig.BreakerFailures = cfg.Storefront.BreakerFailures
	shopifyConfig.BreakerCooldownSeconds = cfg.Storefront.BreakerCooldownSeconds
	store := ecommerce.NewShopifyAdapter(shopifyConfig, log.Named("shopify"))
	if !store.IsConfigured() {
		log.Warn("Storefront credentials missing, sync and preload will produce empty data")
	}

	fetcher := integration.NewFetcher(store, recordCache, integration.FetcherConfig{
		PageSize:         cfg.Storefront.PageSize,
		PageDelay:        cfg.Storefront.PageDelay,
		OrdersTTL:        cfg.Cache.OrdersTTL,
		CustomersTTL:     cfg.Cache.CustomersTTL,
		ProductsTTL:      cfg.Cache.ProductsTTL,
		DiscountCodesTTL: cfg.Cache.DiscountCodesTTL,
	},
		integration.WithFetcherLogger(log.Named("fetcher")),
		integration.WithFetcherMetrics(metrics),
	)

	// Sync
	var syncTrigger *scheduler.IntervalTrigger
	if cfg.Sync.Enabled {
		orchestrator := integration.NewSyncOrchestrator(fetcher, repos, integration.SyncConfig{
			DailyLookbackDays:   cfg.Sync.DailyLookbackDays,
			ProductLookbackDays: cfg.Sync.ProductLookbackDays,
			CouponLookbackDays:  cfg.Sync.CouponLookbackDays,
		},
			integration.WithSyncLogger(log.Named("sync")),
			integration.WithSyncMetrics(metrics),
			integration.WithCacheInvalidator(recordCache),
		)
		syncTrigger, err = scheduler.NewIntervalTrigger(scheduler.IntervalTriggerConfig{
			Name:       "analytics-sync",
			Interval:   cfg.Sync.Interval,
			RunOnStart: cfg.Sync.RunOnStart,
		}, orchestrator.Tick, log)
		if err != nil {
			log.Fatal("Failed to create sync trigger", zap.Error(err))
		}
		if err := syncTrigger.Start(ctx); err != nil {
			log.Fatal("Failed to start sync trigger", zap.Error(err))
		}
		log.Info("Sync scheduled",
			zap.Duration("interval", cfg.Sync.Interval),
			zap.Bool("run_on_start", cfg.Sync.RunOnStart),
		)
	}

	// Dashboard
	var preloader *dashboard.Preloader
	if cfg.Preload.Enabled {
		preloader = dashboard.NewPreloader(fetcher, recordCache, dashboard.PreloaderConfig{
			RefreshInterval: cfg.Preload.RefreshInterval,
			TopN:            cfg.Preload.TopN,
		},
			dashboard.WithPreloaderLogger(log.Named("preload")),
			dashboard.WithSnapshotMirror(mirror),
			dashboard.WithPreloaderMetrics(metrics),
		)
		if err := preloader.Start(ctx); err != nil {
			// Start only fails on a bad trigger config; a failed first preload is logged inside
			log.Fatal("Failed to start preloader", zap.Error(err))
		}
		stats := dashboard.NewStatsService(recordCache, preloader, repos,
			dashboard.WithMirrorFallback(mirror),
		)
		logStartupSnapshot(stats, log)
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if syncTrigger != nil {
		if err := syncTrigger.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping sync trigger", zap.Error(err))
		}
	}
	if preloader != nil {
		if err := preloader.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping preloader", zap.Error(err))
		}
	}
	recordCache.Stop()
	metrics.Stop()

	if err := db.Close(); err != nil {
		log.Error("Error closing database", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}

	log.Info("StorePulse exited gracefully")
}

// logStartupSnapshot reports the month figures after the first preload
func logStartupSnapshot(stats *dashboard.StatsService, log *zap.Logger) {
	snap, err := stats.GetStats(string(dashboard.PeriodMonth))
	if err != nil {
		log.Warn("Dashboard not ready after first preload", zap.Error(err))
		return
	}
	cacheStats := stats.CacheStats()
	log.Info("Dashboard ready",
		zap.Int64("month_orders", snap.Totals.OrderCount),
		zap.String("month_net_sales", snap.Totals.NetSales.StringFixed(2)),
		zap.Int("cache_entries", cacheStats.Size),
		zap.Time("generated_at", snap.GeneratedAt.Truncate(time.Second)),
	)
}
