package main

import (
	"context"
	"errors"
	"net/http"

	"vaulttrust/internal/api"
	"vaulttrust/internal/blockchain"
	"vaulttrust/internal/config"
	"vaulttrust/internal/logger"
	"vaulttrust/internal/metrics"
	"vaulttrust/internal/notify"
	"vaulttrust/internal/storage"
	"vaulttrust/internal/tracker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func serveRun(ctx context.Context, withAPI bool, withTracker bool) error {
	cfg, err := commonRun()
	if err != nil {
		return err
	}
	if withTracker && !withAPI {
		if err := cfg.ValidateTracker(); err != nil {
			return err
		}
	}

	s, err := storage.New(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("cannot close database", zap.Error(err))
		}
	}()

	publisher, err := newPublisher(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("cannot close audit publisher", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	if withTracker {
		stop, err := startTracker(ctx, cfg, s, publisher, m)
		switch {
		case err != nil && !withAPI:
			return err
		case err != nil:
			logger.Error("tracker: cannot start, serving api without on-chain sync", zap.Error(err))
		default:
			defer stop()
		}
	}

	if !withAPI {
		<-ctx.Done()
		return nil
	}

	gin.SetMode(gin.ReleaseMode)
	server := api.NewServer(s, publisher, m)
	err = server.ListenAndServe(ctx, cfg.Address(), cfg.ShutdownTimeout)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func startTracker(
	ctx context.Context,
	cfg *config.Config,
	s storage.Storage,
	publisher notify.Publisher,
	m *metrics.Metrics,
) (func(), error) {
	if err := cfg.ValidateTracker(); err != nil {
		return nil, err
	}

	client, err := blockchain.Dial(ctx, cfg.SepoliaRPCURL)
	if err != nil {
		return nil, err
	}

	t := tracker.NewTracker(s, client, publisher, m, cfg.Tracker())
	if err := t.Start(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return func() {
		t.Stop()
		client.Close()
	}, nil
}

func newPublisher(cfg *config.Config) (notify.Publisher, error) {
	if cfg.AMQPURL == "" {
		return notify.NopPublisher{}, nil
	}

	publisher, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		return nil, err
	}
	logger.Info("audit events are published to amqp", zap.String("exchange", cfg.AMQPExchange))
	return publisher, nil
}

func migrateRun() error {
	cfg, err := commonRun()
	if err != nil {
		return err
	}

	logger.Info("migrate: migrating database schema...", zap.String("driver", cfg.DatabaseDriver))
	s, err := storage.New(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Migrate(); err != nil {
		return err
	}
	logger.Info("migrate: migrating database schema... done")
	return nil
}
