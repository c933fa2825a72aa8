package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bkohler93/match3-backend/internal/app/game"
	"github.com/bkohler93/match3-backend/internal/app/gateway"
	"github.com/bkohler93/match3-backend/internal/app/state"
	"github.com/bkohler93/match3-backend/internal/shared/config"
	"github.com/bkohler93/match3-backend/internal/shared/events"
	"github.com/bkohler93/match3-backend/internal/shared/logger"
	"github.com/bkohler93/match3-backend/internal/shared/metrics"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const publishTimeout = 2 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	stats := metrics.New(reg)

	pub, err := events.FromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	emitter := events.NewEmitter(pub, publishTimeout, log.Named("events"))

	mgr := state.NewManager(game.Config{
		Duration:       cfg.MatchDuration,
		RematchTimeout: cfg.RematchTimeout,
		CancelWindow:   cfg.GarbageCancelWindow,
	}, state.Options{
		Logger:  log.Named("state"),
		Events:  emitter,
		Metrics: stats,
	})

	gw := gateway.NewGateway(cfg.ListenAddr, gateway.ClientConfig{
		MaxMalformed:   cfg.MaxMalformedMessages,
		IdleTimeout:    cfg.IdleTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		MaxMessageSize: cfg.MaxMessageSize,
		OutboundBuffer: cfg.OutboundBuffer,
	}, mgr, gateway.Options{
		Logger:          log.Named("gateway"),
		Metrics:         stats,
		Gatherer:        reg,
		ConnectInterval: cfg.ConnectInterval,
	})

	log.Info("match3 server starting",
		zap.String("addr", cfg.ListenAddr),
		zap.Int("matchSeconds", cfg.MatchSeconds()),
		zap.String("events", string(cfg.EventsBackend)))

	eg, gCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return gw.Start(gCtx)
	})

	var result *multierror.Error
	if err := eg.Wait(); err != nil {
		result = multierror.Append(result, fmt.Errorf("gateway: %w", err))
	}
	mgr.Shutdown()
	if err := emitter.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("events: %w", err))
	}
	log.Info("match3 server stopped")
	return result.ErrorOrNil()
}
