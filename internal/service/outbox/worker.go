// Package outbox доставляет события леджера (auction.created, lot.created, bid.placed)
// из transactional outbox в брокер.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 5 * time.Second
)

// Результаты доставки в метрике ledger_outbox_deliveries_total.
const (
	resultSent         = "sent"
	resultRetry        = "retry_error"
	resultDeadLettered = "dead_lettered"
	resultDLQFailed    = "dlq_failed"
)

var (
	deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_outbox_deliveries_total",
		Help: "Outbox delivery attempts grouped by ledger event type and result.",
	}, []string{"event_type", "result"})
	backlogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_outbox_pending_records",
		Help: "Pending ledger events in the transactional outbox.",
	})
	backlogAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_outbox_oldest_pending_age_seconds",
		Help: "Age of the oldest pending ledger event.",
	})
)

// Option настраивает Worker. Нулевые и отрицательные значения оставляют значение по умолчанию.
type Option func(*Worker)

func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDLQPublisher задаёт publisher для событий, исчерпавших попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlq = publisher }
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithMaxAttempts задаёт число попыток публикации одного события.
func WithMaxAttempts(attempts int) Option {
	return func(w *Worker) {
		if attempts > 0 {
			w.maxAttempts = attempts
		}
	}
}

// WithRetryBaseDelay задаёт первую паузу между попытками; 0 отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) { w.retryBaseDelay = max(delay, 0) }
}

// BatchResult: итог одного прохода по outbox.
type BatchResult struct {
	Pulled       int
	Sent         int
	DeadLettered int
}

func (r *BatchResult) add(other BatchResult) {
	r.Pulled += other.Pulled
	r.Sent += other.Sent
	r.DeadLettered += other.DeadLettered
}

// Worker публикует pending-события леджера в порядке записи.
// Событие, не опубликованное за maxAttempts попыток, уходит в DLQ и помечается failed,
// поэтому одно «ядовитое» событие не останавливает поток остальных.
type Worker struct {
	repo           domain.OutboxRepository
	publisher      domain.OutboxPublisher
	dlq            domain.OutboxPublisher
	logger         *log.Entry
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	now            func() time.Time
}

func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	w := &Worker{
		repo:           repo,
		publisher:      publisher,
		logger:         log.WithField("component", "outbox-worker"),
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		now:            time.Now,
	}
	for _, option := range options {
		option(w)
	}
	return w
}

func (w *Worker) enabled() bool {
	return w.repo != nil && w.publisher != nil
}

// Run опрашивает outbox каждые pollInterval до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if !w.enabled() {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Drain гоняет батчи подряд, пока outbox не опустеет или не истечёт ctx.
// Вызывается при остановке, чтобы события последних запросов не ждали следующего запуска.
func (w *Worker) Drain(ctx context.Context) BatchResult {
	var total BatchResult
	if !w.enabled() {
		return total
	}
	for ctx.Err() == nil {
		batch := w.ProcessOnce(ctx)
		total.add(batch)
		if batch.Pulled < w.batchSize || batch.Sent+batch.DeadLettered == 0 {
			break
		}
	}
	if total.Pulled > 0 {
		w.logger.WithFields(log.Fields{
			"sent":          total.Sent,
			"dead_lettered": total.DeadLettered,
		}).Info("outbox drained")
	}
	return total
}

// ProcessOnce забирает один батч и доставляет события по порядку.
// Отмена ctx прерывает батч; недоставленные события остаются pending.
func (w *Worker) ProcessOnce(ctx context.Context) BatchResult {
	var result BatchResult
	if ctx.Err() != nil {
		return result
	}

	events, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return result
	}
	result.Pulled = len(events)

	for _, event := range events {
		outcome, err := w.deliver(ctx, event)
		if err != nil {
			break
		}
		switch outcome {
		case resultSent:
			result.Sent++
		default:
			result.DeadLettered++
		}
	}

	w.observeBacklog(ctx)
	return result
}

// deliver возвращает resultSent или исход отправки в DLQ.
// Ошибка означает, что доставка прервана отменой ctx.
func (w *Worker) deliver(ctx context.Context, event domain.OutboxMessage) (string, error) {
	entry := w.logger.WithFields(log.Fields{
		"outbox_id":    event.ID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
	})

	publishErr := w.publish(ctx, event)
	if publishErr == nil {
		if err := w.repo.MarkSent(ctx, event.ID); err != nil {
			entry.WithError(err).Warn("failed to mark outbox message as sent")
		}
		return resultSent, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	entry.WithError(publishErr).Error("outbox publish failed after retries")
	outcome := resultDeadLettered
	if err := w.deadLetter(ctx, event, publishErr); err != nil {
		entry.WithError(err).Warn("failed to publish to DLQ")
		outcome = resultDLQFailed
	}
	deliveries.WithLabelValues(event.EventType, outcome).Inc()
	if err := w.repo.MarkFailed(ctx, event.ID); err != nil {
		entry.WithError(err).Warn("failed to mark outbox message as failed")
	}
	return outcome, nil
}

// publish делает до maxAttempts попыток с экспоненциальной паузой между ними.
func (w *Worker) publish(ctx context.Context, event domain.OutboxMessage) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = w.publisher.Publish(ctx, event); err == nil {
			deliveries.WithLabelValues(event.EventType, resultSent).Inc()
			return nil
		}
		deliveries.WithLabelValues(event.EventType, resultRetry).Inc()
		if attempt >= w.maxAttempts {
			return fmt.Errorf("publish failed after %d attempts: %w", attempt, err)
		}
		if waitErr := wait(ctx, w.retryBackoff(attempt)); waitErr != nil {
			return waitErr
		}
	}
}

func wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryBackoff: base, 2*base, 4*base... не больше maxRetryDelay.
func (w *Worker) retryBackoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}
	delay := w.retryBaseDelay
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

// deadLetter без DLQ-publisher ничего не делает: событие только помечается failed.
func (w *Worker) deadLetter(ctx context.Context, event domain.OutboxMessage, cause error) error {
	if w.dlq == nil {
		return nil
	}
	msg, err := NewDeadLetter(event, cause, w.now()).Message(event)
	if err != nil {
		return err
	}
	if err := w.dlq.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}

func (w *Worker) observeBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	backlogSize.Set(float64(stats.PendingCount))
	age := 0.0
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = max(w.now().Sub(stats.OldestPendingAt).Seconds(), 0)
	}
	backlogAge.Set(age)
}
