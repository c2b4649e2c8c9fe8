// Package idempotency чистит просроченные ключи Idempotency-Key,
// которыми клиенты защищают POST /auctions, /lots и /bids от повторов.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
	// defaultMaxBatches ограничивает один проход; остаток подберёт следующий тик.
	defaultMaxBatches = 20
)

var (
	sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_idempotency_sweeps_total",
		Help: "Idempotency key sweeps grouped by outcome.",
	}, []string{"outcome"})
	sweptKeys = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_idempotency_swept_keys_total",
		Help: "Expired idempotency keys removed by sweeps.",
	})
	sweepLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_idempotency_sweep_last_deleted",
		Help: "Keys removed by the most recent sweep.",
	})
)

// CleanupOptions задаёт параметры CleanupWorker.
type CleanupOptions struct {
	Logger     *log.Entry
	Interval   time.Duration
	BatchSize  int
	MaxBatches int
	Grace      time.Duration
	Clock      func() time.Time
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupOptions)

func WithLogger(logger *log.Entry) CleanupOption {
	return func(opts *CleanupOptions) { opts.Logger = logger }
}

func WithInterval(interval time.Duration) CleanupOption {
	return func(opts *CleanupOptions) { opts.Interval = interval }
}

// WithBatchSize задаёт число ключей, удаляемых одним запросом к хранилищу.
func WithBatchSize(batchSize int) CleanupOption {
	return func(opts *CleanupOptions) { opts.BatchSize = batchSize }
}

// WithMaxBatches ограничивает число батчей за один проход; 0 оставляет значение по умолчанию.
func WithMaxBatches(maxBatches int) CleanupOption {
	return func(opts *CleanupOptions) { opts.MaxBatches = maxBatches }
}

// WithGrace сдвигает отсечку назад: ключ живёт ещё grace после своего ttl.
// Нужен, когда часы реплик расходятся и клиент повторяет запрос на границе ttl.
func WithGrace(grace time.Duration) CleanupOption {
	return func(opts *CleanupOptions) { opts.Grace = grace }
}

func WithClock(clock func() time.Time) CleanupOption {
	return func(opts *CleanupOptions) { opts.Clock = clock }
}

// SweepReport: итог одного прохода очистки.
type SweepReport struct {
	Cutoff    time.Time
	Deleted   int
	Batches   int
	Truncated bool
}

// CleanupWorker периодически удаляет ключи идемпотентности с истёкшим ttl.
type CleanupWorker struct {
	repo       domain.IdempotencyRepository
	logger     *log.Entry
	interval   time.Duration
	batchSize  int
	maxBatches int
	grace      time.Duration
	clock      func() time.Time
}

// NewCleanupWorker создаёт воркер очистки.
func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	opts := CleanupOptions{}
	for _, option := range options {
		option(&opts)
	}

	w := &CleanupWorker{
		repo:       repo,
		logger:     opts.Logger,
		interval:   opts.Interval,
		batchSize:  opts.BatchSize,
		maxBatches: opts.MaxBatches,
		grace:      max(opts.Grace, 0),
		clock:      opts.Clock,
	}
	if w.logger == nil {
		w.logger = log.WithField("component", "idempotency-cleanup-worker")
	}
	if w.interval <= 0 {
		w.interval = defaultCleanupInterval
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultCleanupBatchSize
	}
	if w.maxBatches <= 0 {
		w.maxBatches = defaultMaxBatches
	}
	if w.clock == nil {
		w.clock = func() time.Time { return time.Now().UTC() }
	}
	return w
}

// Run выполняет Sweep сразу и далее каждые interval до отмены ctx.
// Если прошлый проход упёрся в лимит батчей, следующий запускается без ожидания тика.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup worker is disabled: repo is nil")
		return
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next := w.interval
		if report, ok := w.runSweep(ctx); ok && report.Truncated {
			next = 0
		}
		timer.Reset(next)
	}
}

func (w *CleanupWorker) runSweep(ctx context.Context) (SweepReport, bool) {
	report, err := w.Sweep(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return report, false
		}
		sweepRuns.WithLabelValues("error").Inc()
		w.logger.WithError(err).WithField("deleted", report.Deleted).Warn("idempotency sweep failed")
		return report, false
	}

	outcome := "complete"
	if report.Truncated {
		outcome = "truncated"
	}
	sweepRuns.WithLabelValues(outcome).Inc()
	sweepLastDeleted.Set(float64(report.Deleted))
	if report.Deleted > 0 {
		w.logger.WithFields(log.Fields{
			"deleted":   report.Deleted,
			"batches":   report.Batches,
			"truncated": report.Truncated,
		}).Info("idempotency keys swept")
	}
	return report, true
}

// Sweep удаляет ключи с ttl не позже clock()-grace батчами по batchSize,
// пока батч не окажется неполным или не будет исчерпан лимит maxBatches.
func (w *CleanupWorker) Sweep(ctx context.Context) (SweepReport, error) {
	report := SweepReport{Cutoff: w.clock().Add(-w.grace)}

	for report.Batches < w.maxBatches {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		deleted, err := w.repo.DeleteExpired(ctx, report.Cutoff, w.batchSize)
		if err != nil {
			return report, err
		}
		report.Batches++
		report.Deleted += deleted
		sweptKeys.Add(float64(deleted))

		if deleted < w.batchSize {
			return report, nil
		}
	}
	report.Truncated = true
	return report, nil
}
