package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"pocketmoney/internal/cache"
	"pocketmoney/internal/cli"
	"pocketmoney/internal/core"
	apphttp "pocketmoney/internal/http"
	applog "pocketmoney/internal/log"
	"pocketmoney/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pocketmoney:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, logger, err := cli.Bootstrap()
	if err != nil {
		return err
	}

	mode, err := core.ParseRewardMode(cfg.RewardMode)
	if err != nil {
		return err
	}

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, nil)

	result, err := cli.OpenBackend(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	summaries := cache.NewLRUCache[core.PeriodSummary](cfg.CacheSize, cfg.CacheTTL)
	janitor := cache.NewJanitor(summaries)
	go janitor.Run(ctx, cfg.CacheTTL)

	// a nil *amqp.Client must not reach the service as a non-nil interface
	var events services.EventPublisher
	if result.Events != nil {
		events = result.Events
	}
	ledger := services.NewLedgerService(result.Backend, events, summaries, mode)

	srv, err := apphttp.NewServer(":"+cfg.Port, ledger, apphttp.Options{
		Logger:         logger,
		RateLimitRPM:   cfg.RateLimitRPM,
		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting pocketmoney server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"reward_mode", mode,
			"events", result.Events != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", applog.FieldError, err)
	}
	<-janitor.Done()
	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
	return nil
}
