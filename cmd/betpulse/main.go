package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rewired-gh/betpulse/internal/accumulator"
	"github.com/rewired-gh/betpulse/internal/anomaly"
	"github.com/rewired-gh/betpulse/internal/api"
	"github.com/rewired-gh/betpulse/internal/config"
	"github.com/rewired-gh/betpulse/internal/engine"
	"github.com/rewired-gh/betpulse/internal/events"
	"github.com/rewired-gh/betpulse/internal/ingest"
	"github.com/rewired-gh/betpulse/internal/logger"
	"github.com/rewired-gh/betpulse/internal/market"
	"github.com/rewired-gh/betpulse/internal/models"
	"github.com/rewired-gh/betpulse/internal/report"
	"github.com/rewired-gh/betpulse/internal/retention"
	"github.com/rewired-gh/betpulse/internal/storage"
	"github.com/rewired-gh/betpulse/internal/telegram"
	"github.com/rewired-gh/betpulse/internal/telemetry"
)

var (
	configPath     = flag.String("config", "configs/config.yaml", "Path to configuration file")
	reportOnly     = flag.Bool("report", false, "Print a report from the archive and exit")
	reportInterval = flag.String("interval", "1d", "Report history interval: 1h, 1d, 7d or 30d")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Analytics.MaxSnapshots, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	metrics := telemetry.New()

	var notifier *telegram.Notifier
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled && !*reportOnly {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, time.Second)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		notifier = telegram.NewNotifier(telegramClient, telegram.NotifierConfig{
			MinSeverity:   models.Severity(cfg.Telegram.MinSeverity),
			Cooldown:      cfg.Telegram.Cooldown,
			RatePerMinute: cfg.Telegram.RatePerMinute,
		}, store, metrics)
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	deps := engine.Deps{Archive: store, Metrics: metrics}
	if notifier != nil {
		deps.Alerts = notifier
	}
	eng := engine.New(engineConfig(cfg), deps)

	restored := eng.Retention().Restore(time.Now())
	logger.Info("Restored %d time series points from archive", restored)

	if *reportOnly {
		if err := report.NewConsole(os.Stdout, *reportInterval, 30).Print(eng, time.Now()); err != nil {
			logger.Fatal("Failed to print report: %v", err)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	eng.Retention().Start(ctx)
	if notifier != nil {
		notifier.Start(ctx)
	}

	ingestor := ingest.New(eng, ingest.Config{
		Workers:   cfg.Events.Workers,
		QueueSize: cfg.Events.QueueSize,
	}, metrics)
	if notifier != nil {
		ingestor.SetReporter(notifier)
	}

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, func() string { return statusLine(eng) })
	}

	var rdb *redis.Client
	runDone := make(chan struct{})
	if cfg.Events.Source == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Events.RedisAddr,
			Password: cfg.Events.RedisPassword,
			DB:       cfg.Events.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to connect to Redis at %s: %v", cfg.Events.RedisAddr, err)
		}
		src := events.NewRedisSource(rdb, cfg.Events.Stream, cfg.Events.Group, cfg.Events.Consumer)
		go func() {
			defer close(runDone)
			if err := ingestor.Run(ctx, src); err != nil {
				logger.Error("Event ingestion stopped: %v", err)
			}
		}()
		logger.Info("Consuming %s as %s/%s (%d workers)",
			cfg.Events.Stream, cfg.Events.Group, cfg.Events.Consumer, cfg.Events.Workers)
	} else {
		close(runDone)
		logger.Info("Event source disabled")
	}

	var server *http.Server
	if cfg.API.Enabled {
		router := api.NewRouter(api.NewHandler(eng, store), cfg.API.AllowedOrigins, metrics.Registry())
		server = &http.Server{
			Addr:         cfg.API.Addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 35 * time.Second,
		}
		go func() {
			logger.Info("API listening on %s", cfg.API.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("API server failed: %v", err)
			}
		}()
	}

	<-sigChan
	logger.Info("Shutdown signal received, cleaning up...")

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("API server shutdown: %v", err)
		}
		shutdownCancel()
	}

	cancel()
	<-runDone
	ingestor.Close()
	eng.Retention().Stop()
	if notifier != nil {
		notifier.Stop()
	}

	// final snapshot so the archive reflects the last applied events
	eng.Retention().Snapshot(time.Now())

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.Warn("Failed to close Redis client: %v", err)
		}
	}
	logger.Info("Service stopped")
}

func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		Breakdown: accumulator.BreakdownFilter{
			MinBets:       cfg.Breakdown.MinBets,
			MinStake:      cfg.Breakdown.MinStake,
			MinConfidence: cfg.Breakdown.MinConfidence,
		},
		Market: market.Config{
			MaxHistory:   cfg.Market.MaxHistory,
			LiquidityCap: cfg.Market.LiquidityCap,
		},
		Anomaly: anomaly.Config{
			Threshold:  cfg.Anomaly.Threshold,
			MinHistory: cfg.Anomaly.MinHistory,
			Window:     cfg.Anomaly.Window,
			SigmaFloor: cfg.Anomaly.SigmaFloor,
		},
		Retention: retention.Config{
			Period:           cfg.Analytics.RetentionPeriod,
			SnapshotInterval: cfg.Analytics.SnapshotInterval,
			CleanupInterval:  cfg.Analytics.CleanupInterval,
			MaxSnapshots:     cfg.Analytics.MaxSnapshots,
		},
	}
}

func statusLine(eng *engine.Engine) string {
	m := eng.Metrics(nil)
	return fmt.Sprintf("bets %d (open %d), P&L %.2f, ROI %.2f%%, win rate %.1f%%, markets %d",
		m.TotalBets, m.PendingBets, m.ProfitLoss, m.ROI*100, m.WinRate*100, len(eng.Markets()))
}
