package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/app"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/config"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/logger"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/outbox"
	httptransport "github.com/Bforsyth1234/customer-loyalty-rewards/internal/transport/http"
)

func main() {
	cfg := config.Load()
	cfg.Backend = config.BackendPostgres
	log := logger.New(cfg.Env).Named("dlq")
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("open backend", zap.Error(err))
	}
	defer rt.Close()

	manager, err := rt.DLQManager()
	if err != nil {
		log.Fatal("dlq manager", zap.Error(err))
	}

	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)
	httptransport.Serve(metricsSrv, "metrics", log)

	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	log.Info("dlq manager started",
		zap.Duration("interval", cfg.DLQPollInterval),
		zap.Int("max_retries", cfg.DLQMaxRetries))

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown requested")
			httptransport.Shutdown(cfg.ShutdownTimeout, log, metricsSrv)
			return
		case <-ticker.C:
			report, err := manager.RunOnce(ctx, cfg.DLQBatchSize)
			if err != nil {
				log.Error("dlq pass failed", zap.Error(err))
				continue
			}
			if report != (outbox.ReplayReport{}) {
				log.Info("dlq pass",
					zap.Int("requeued", report.Requeued),
					zap.Int("rescheduled", report.Rescheduled),
					zap.Int("quarantined", report.Quarantined))
			}
		}
	}
}
