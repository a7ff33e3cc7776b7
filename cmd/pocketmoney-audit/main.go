package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"pocketmoney/internal/cli"
	applog "pocketmoney/internal/log"
	"pocketmoney/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pocketmoney-audit:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, logger, err := cli.Bootstrap()
	if err != nil {
		return err
	}
	if !cfg.EventsEnabled() {
		return errors.New("AMQP_URL is required for the audit worker")
	}

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, nil)

	result, err := cli.OpenBackend(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()
	if result.Events == nil {
		return errors.New("AMQP broker unreachable")
	}

	w := worker.NewAuditWorker(result.Events, result.Backend, cfg.AuditReportInterval)
	logger.WithComponent(applog.ComponentWorker).Info("Starting audit worker",
		"backend", cfg.DataBackend,
		"queue", cfg.AMQPQueue)

	err = w.Run(ctx)
	recorded, duplicates := w.Stats()
	logger.Info("Audit worker stopped", "recorded", recorded, "duplicates", duplicates)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	cli.WaitForShutdown(ctx, done)
	return nil
}
