// Package app собирает сервис леджера аукционов: хранилище, движок рекомендаций,
// HTTP API, outbox relay и фоновые воркеры.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/auctionledger/internal/health"
	"github.com/vladislavdragonenkov/auctionledger/internal/ledger"
	"github.com/vladislavdragonenkov/auctionledger/internal/metrics"
	"github.com/vladislavdragonenkov/auctionledger/internal/recommend"
	"github.com/vladislavdragonenkov/auctionledger/internal/service/idempotency"
	"github.com/vladislavdragonenkov/auctionledger/internal/service/outbox"
	"github.com/vladislavdragonenkov/auctionledger/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/auctionledger/internal/version"
)

const shutdownTimeout = 5 * time.Second

var _ ledger.Metrics = (*metrics.LedgerMetrics)(nil)

// Run запускает сервис и блокируется до отмены ctx или падения HTTP-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	engine, err := newRecommendationEngine(cfg, logger)
	if err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.WithError(err).Warn("failed to close ledger storage")
		}
	}()

	retry := ledger.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.SequenceMaxAttempts
	metrics.RegisterBuildInfo(nil, version.Current())
	ledgerService, err := ledger.NewService(deps.store, engine,
		ledger.WithLogger(logger),
		ledger.WithMetrics(metrics.NewLedgerMetrics()),
		ledger.WithRetryPolicy(retry),
	)
	if err != nil {
		return err
	}

	healthHandler := healthcheck.NewHandler(version.Service, version.GetVersion())
	healthHandler.Register("storage", healthcheck.StorageChecker(ledgerService))
	healthHandler.Register("model", healthcheck.ModelChecker(func() int { return engine.Grid().Len() }))
	healthHandler.RegisterOptional("outbox", healthcheck.NewOutboxBacklogChecker(deps.outboxRepo, cfg.OutboxStaleAfter))

	// Без брокера сервис работает дальше: события уходят в лог.
	sink := openEventSink(cfg, logger)
	defer sink.Close(logger)

	outboxOptions := append([]outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}, sink.workerOptions()...)
	outboxWorker := outbox.NewWorker(deps.outboxRepo, sink.events, outboxOptions...)

	cleanupWorker := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		idempotency.WithGrace(cfg.IdempotencyCleanupGrace),
	)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	defer func() {
		stopWorkers()
		workers.Wait()

		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		outboxWorker.Drain(drainCtx)
	}()

	workers.Add(2)
	go func() {
		defer workers.Done()
		outboxWorker.Run(workerCtx)
	}()
	go func() {
		defer workers.Done()
		cleanupWorker.Run(workerCtx)
	}()

	router := httpapi.NewRouter(ledgerService,
		httpapi.WithRouterLogger(logger),
		httpapi.WithIdempotency(deps.idempotencyRepo, cfg.IdempotencyTTL),
		httpapi.WithGetHandler("/healthz", healthHandler),
		httpapi.WithGetHandler("/livez", http.HandlerFunc(healthcheck.LivenessHandler)),
		httpapi.WithGetHandler("/readyz", http.HandlerFunc(healthHandler.ReadinessHandler)),
	)

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		return err
	}

	apiSrv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: shutdownTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", lis.Addr())
		errCh <- apiSrv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// newRecommendationEngine загружает артефакты модели и сетку кандидатов.
func newRecommendationEngine(cfg Config, logger *log.Entry) (*recommend.Engine, error) {
	artifacts, err := recommend.LoadArtifacts(cfg.ModelDir)
	if err != nil {
		return nil, fmt.Errorf("load model artifacts: %w", err)
	}

	grid := recommend.DefaultGrid()
	if cfg.BidGrid != "" {
		if grid, err = recommend.ParseGrid(cfg.BidGrid); err != nil {
			return nil, err
		}
	}

	engine, err := recommend.NewEngine(artifacts, grid, logger)
	if err != nil {
		return nil, err
	}
	logger.WithFields(log.Fields{
		"model_dir": cfg.ModelDir,
		"grid":      grid.String(),
	}).Info("модель стартовых ставок загружена")
	return engine, nil
}
