package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sentryscan/sentryscan/internal/breaker"
	"github.com/sentryscan/sentryscan/internal/cache"
	"github.com/sentryscan/sentryscan/internal/calendar"
	"github.com/sentryscan/sentryscan/internal/config"
	"github.com/sentryscan/sentryscan/internal/detectors"
	"github.com/sentryscan/sentryscan/internal/explain"
	"github.com/sentryscan/sentryscan/internal/exporter"
	"github.com/sentryscan/sentryscan/internal/orchestrator"
	"github.com/sentryscan/sentryscan/internal/provider"
	"github.com/sentryscan/sentryscan/internal/risk"
	"github.com/sentryscan/sentryscan/internal/scheduler"
	"github.com/sentryscan/sentryscan/internal/scoring"
	"github.com/sentryscan/sentryscan/internal/store"
	"github.com/sentryscan/sentryscan/internal/throttle"
	"github.com/sentryscan/sentryscan/pkg/logger"

	"github.com/rs/zerolog"
)

const exportInterval = 5 * time.Minute

func main() {
	log := logger.New(logger.Config{Level: "info", Pretty: true})
	log.Info().Msg("starting sentryscan")

	configPath := os.Getenv("SENTRYSCAN_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})

	if len(cfg.Symbols) == 0 {
		log.Fatal().Msg("no watchlist symbols configured")
	}

	s, err := store.Open(cfg.DatabasePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer s.Close()

	cal, err := calendar.New(cfg.HolidaysFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize calendar")
	}

	c := cache.New(int64(cfg.CacheTTLMinutes)*60*1024*1024, log)
	breakers := breaker.NewRegistry(0, 0, log)

	if !cfg.DemoMode {
		log.Fatal().Msg("live market data vendor is out of scope; set demo_mode: true")
	}
	p := provider.NewDemoProvider(cal, c, breakers, log)

	orch := orchestrator.New(
		cfg, s, p,
		detectors.NewPopulatedRegistry(log),
		scoring.New(log),
		risk.New(log),
		throttle.New(s, log),
		explain.New(log),
		cfg.AccountState(),
		log,
	)

	sched, err := scheduler.New(cfg, s, cal, breakers, orch, cfg.Symbols, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize scheduler")
	}

	exp, err := exporter.New(cfg.ExportDir, s, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize exporter")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sched.Run(ctx)
	go runExporter(ctx, exp, cal, log)

	log.Info().Strs("symbols", cfg.Symbols).Msg("sentryscan started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutdown signal received")
	sched.Stop()
	cancel()

	res := exp.ExportAll(cal.NowUTC())
	if !res.Success {
		log.Warn().Strs("errors", res.Errors).Msg("final export completed with failures")
	}

	log.Info().Msg("sentryscan stopped")
}

// runExporter flushes the exporter on a fixed interval until ctx is
// canceled. The scheduler does not export after a scan; apart from this
// timer, the only export is the final one run at shutdown.
func runExporter(ctx context.Context, exp *exporter.Exporter, cal *calendar.Calendar, log zerolog.Logger) {
	ticker := time.NewTicker(exportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res := exp.ExportAll(cal.NowUTC())
			if !res.Success {
				log.Warn().Strs("errors", res.Errors).Msg("periodic export completed with failures")
			}
		}
	}
}
