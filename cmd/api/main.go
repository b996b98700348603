package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/app"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/config"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/logger"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/outbox"
	httptransport "github.com/Bforsyth1234/customer-loyalty-rewards/internal/transport/http"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/web"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("open backend", zap.Error(err))
	}
	defer rt.Close()

	if err := rt.Backend.Migrate(ctx); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	var dispatcher *outbox.Dispatcher
	if rt.Pool != nil {
		producer := outbox.NewKafkaProducer(outbox.ProducerConfig{Brokers: cfg.KafkaBrokers, Logger: log.Named("kafka")})
		defer producer.Close()

		dispatcher = outbox.NewDispatcher(rt.Pool, producer, log.Named("outbox"), cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		go dispatcher.Start(ctx)
	}

	console, err := web.NewServer(rt.Backend.Client, log.Named("web"), web.Config{
		CookieSecure: cfg.CookieSecure,
		SessionTTL:   cfg.SessionTTL,
	})
	if err != nil {
		log.Fatal("build console", zap.Error(err))
	}

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), console.Routes())
	httptransport.Serve(server, "console", log)

	<-ctx.Done()
	log.Info("shutdown requested")
	httptransport.Shutdown(cfg.ShutdownTimeout, log, server)

	if dispatcher != nil {
		dispatcher.Wait()
	}
}
