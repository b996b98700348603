package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/app"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/cli"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/config"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	defer func() { _ = log.Sync() }()

	open := func(ctx context.Context) (*app.Runtime, error) {
		return app.Open(ctx, cfg, log)
	}
	if err := cli.NewRootCommand(open).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
