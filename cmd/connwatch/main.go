package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connwatch/internal/alerting"
	"connwatch/internal/api"
	"connwatch/internal/cache"
	"connwatch/internal/config"
	"connwatch/internal/logger"
	"connwatch/internal/monitor"
	"connwatch/internal/monitoring"
	"connwatch/internal/scheduler"
	"connwatch/internal/storage"
)

func main() {
	configFile := flag.String("config", "configs/config.yaml", "configuration file path")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.Logging)
	log.Info("starting connwatch",
		"version", cfg.App.Version, "env", cfg.App.Env)

	engine := monitor.NewEngine(cfg.Monitoring, log)
	metrics := monitoring.NewMetrics()

	// Storage is optional: the engine keeps full in-memory behavior without it.
	var store *storage.Store
	var db *storage.DB
	if cfg.Database.Enabled {
		db, err = storage.NewConnection(&storage.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
			MaxOpen:  cfg.Database.MaxOpen,
			MaxIdle:  cfg.Database.MaxIdle,
			Timeout:  cfg.Database.Timeout,
		}, log)
		if err != nil {
			log.Warn("database unavailable, continuing without persistence", "error", err.Error())
		} else {
			migrator, err := storage.NewMigrator(db)
			if err != nil {
				log.Fatal("failed to prepare migrations", "error", err.Error())
			}
			if err := migrator.Up(); err != nil {
				log.Fatal("failed to run migrations", "error", err.Error())
			}
			store = storage.NewStore(db, log)
		}
	}

	snapshots, err := cache.NewCacher(&cache.Config{
		Enabled:  cfg.Redis.Enabled,
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		log.Warn("redis unavailable, falling back to in-memory cache", "error", err.Error())
		snapshots, _ = cache.NewCacher(nil)
	}

	server := api.NewServer(cfg, engine, store, snapshots, metrics, log)

	var notifier *alerting.Notifier
	if cfg.Alerting.Enabled {
		notifier = alerting.NewNotifier(cfg.Alerting, log)
		notifier.SetMetrics(metrics)
		server.SetNotifier(notifier)
	}

	sched := scheduler.New(log)
	registerJobs(sched, engine, store, snapshots, cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine.Start(ctx)
	sched.Start()
	if notifier != nil {
		notifier.Start()
	}

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", "error", err.Error())
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err.Error())
	}
	sched.Stop()
	engine.Stop()
	if notifier != nil {
		notifier.Stop()
	}
	cancel()

	if db != nil {
		if err := db.Close(); err != nil {
			log.Error("database close error", "error", err.Error())
		}
	}
	log.Info("connwatch stopped")
}

// registerJobs installs the periodic maintenance jobs.
func registerJobs(sched *scheduler.Scheduler, engine *monitor.Engine, store *storage.Store, snapshots cache.Cacher, cfg *config.Config, log logger.Logger) {
	// Refresh every known source's scorecards and snapshot them.
	mustAddJob(sched, log, "scorecard-refresh", "@every 15m", func(ctx context.Context) error {
		for _, connector := range engine.ListConnectors() {
			sourceID := connector.Identity.SourceID
			if sourceID == "" {
				continue
			}
			for _, period := range []monitor.ScorecardPeriod{monitor.Period24h, monitor.Period7d, monitor.Period30d} {
				card, err := engine.GetScorecard(sourceID, period)
				if err != nil {
					continue
				}
				if snapshots != nil {
					_ = snapshots.Set(ctx, cache.ScorecardKey(sourceID, period), card, time.Hour)
				}
				if store != nil {
					if err := store.UpsertScorecard(ctx, card); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})

	if store != nil {
		mustAddJob(sched, log, "retention-cleanup", "@daily", func(ctx context.Context) error {
			_, _, err := store.CleanupRetention(ctx,
				cfg.Retention.LogRetentionDays, cfg.Retention.AlertRetentionDays)
			return err
		})
	}
}

func mustAddJob(sched *scheduler.Scheduler, log logger.Logger, name, schedule string, handler scheduler.HandlerFunc) {
	if err := sched.AddJob(name, schedule, handler); err != nil {
		log.Fatal("failed to register job", "job", name, "error", err.Error())
	}
}
