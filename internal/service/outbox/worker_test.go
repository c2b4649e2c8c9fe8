package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
	"github.com/vladislavdragonenkov/auctionledger/internal/storage/memory"
)

// fakeOutbox: outbox с заранее заданным backlog; фиксирует, чем закончилась доставка каждого события.
type fakeOutbox struct {
	mu       sync.Mutex
	backlog  []domain.OutboxMessage
	outcome  map[string]string
	pullErr  error
	markErr  error
	oldestAt time.Time
}

func newFakeOutbox(events ...domain.OutboxMessage) *fakeOutbox {
	return &fakeOutbox{backlog: events, outcome: make(map[string]string)}
}

func (f *fakeOutbox) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	var batch []domain.OutboxMessage
	for _, event := range f.backlog {
		if _, done := f.outcome[event.ID]; !done && len(batch) < limit {
			batch = append(batch, event)
		}
	}
	return batch, nil
}

func (f *fakeOutbox) Stats(context.Context) (domain.OutboxStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := domain.OutboxStats{PendingCount: len(f.backlog) - len(f.outcome)}
	if stats.PendingCount > 0 {
		stats.OldestPendingAt = f.oldestAt
	}
	return stats, nil
}

func (f *fakeOutbox) MarkSent(_ context.Context, id string) error { return f.mark(id, "sent") }

func (f *fakeOutbox) MarkFailed(_ context.Context, id string) error { return f.mark(id, "failed") }

func (f *fakeOutbox) mark(id, outcome string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcome[id] = outcome
	return f.markErr
}

func (f *fakeOutbox) outcomeOf(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcome[id]
}

// scriptedBroker отвечает на публикации ошибками из script по порядку, затем fallback.
type scriptedBroker struct {
	mu        sync.Mutex
	script    []error
	fallback  error
	published []domain.OutboxMessage
}

func (b *scriptedBroker) Publish(_ context.Context, event domain.OutboxMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
	if len(b.script) > 0 {
		err := b.script[0]
		b.script = b.script[1:]
		return err
	}
	return b.fallback
}

func (b *scriptedBroker) attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

var (
	_ domain.OutboxRepository = (*fakeOutbox)(nil)
	_ domain.OutboxPublisher  = (*scriptedBroker)(nil)
)

func lotCreated(id string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: "lot",
		AggregateID:   "lot:1:1",
		EventType:     "lot.created",
		Payload:       []byte(`{"auctionID":1,"lotNr":1}`),
	}
}

func TestWorker_DeliveryOutcomes(t *testing.T) {
	t.Parallel()

	brokerDown := errors.New("broker down")
	tests := []struct {
		name         string
		broker       *scriptedBroker
		dlq          *scriptedBroker
		want         BatchResult
		wantAttempts int
		wantOutcome  string
		wantDLQ      int
	}{
		{
			name:         "first attempt",
			broker:       &scriptedBroker{},
			want:         BatchResult{Pulled: 1, Sent: 1},
			wantAttempts: 1,
			wantOutcome:  "sent",
		},
		{
			name:         "sent after transient errors",
			broker:       &scriptedBroker{script: []error{brokerDown, brokerDown}},
			dlq:          &scriptedBroker{},
			want:         BatchResult{Pulled: 1, Sent: 1},
			wantAttempts: 3,
			wantOutcome:  "sent",
		},
		{
			name:         "dead lettered after max attempts",
			broker:       &scriptedBroker{fallback: brokerDown},
			dlq:          &scriptedBroker{},
			want:         BatchResult{Pulled: 1, DeadLettered: 1},
			wantAttempts: 3,
			wantOutcome:  "failed",
			wantDLQ:      1,
		},
		{
			name:         "failed without dlq",
			broker:       &scriptedBroker{fallback: brokerDown},
			want:         BatchResult{Pulled: 1, DeadLettered: 1},
			wantAttempts: 3,
			wantOutcome:  "failed",
		},
		{
			name:         "dlq also down",
			broker:       &scriptedBroker{fallback: brokerDown},
			dlq:          &scriptedBroker{fallback: brokerDown},
			want:         BatchResult{Pulled: 1, DeadLettered: 1},
			wantAttempts: 3,
			wantOutcome:  "failed",
			wantDLQ:      1,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := newFakeOutbox(lotCreated("msg-1"))
			opts := []Option{WithRetryBaseDelay(0), WithMaxAttempts(3)}
			if tc.dlq != nil {
				opts = append(opts, WithDLQPublisher(tc.dlq))
			}

			got := NewWorker(repo, tc.broker, opts...).ProcessOnce(context.Background())

			require.Equal(t, tc.want, got)
			require.Equal(t, tc.wantAttempts, tc.broker.attempts())
			require.Equal(t, tc.wantOutcome, repo.outcomeOf("msg-1"))
			if tc.dlq != nil {
				require.Equal(t, tc.wantDLQ, tc.dlq.attempts())
			}
		})
	}
}

func TestWorker_DeadLetterCarriesOriginalEvent(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	repo := newFakeOutbox(lotCreated("msg-2"))
	dlq := &scriptedBroker{}
	worker := NewWorker(repo, &scriptedBroker{fallback: errors.New("leader not available")},
		WithDLQPublisher(dlq), WithRetryBaseDelay(0), WithMaxAttempts(2))
	worker.now = func() time.Time { return at }

	worker.ProcessOnce(context.Background())

	require.Len(t, dlq.published, 1)
	msg := dlq.published[0]
	require.Equal(t, "msg-2", msg.ID)
	require.Equal(t, "lot:1:1", msg.AggregateID, "dead letter keeps the partition key of the event")

	letter, err := DecodeDeadLetter(msg.Payload)
	require.NoError(t, err)
	require.Equal(t, "lot.created", letter.EventType)
	require.JSONEq(t, `{"auctionID":1,"lotNr":1}`, string(letter.Payload))
	require.Contains(t, letter.PublishError, "publish failed after 2 attempts")
	require.Contains(t, letter.PublishError, "leader not available")
	require.True(t, at.Equal(letter.DLQPublishedAt))
}

func TestWorker_MarkErrorsDoNotStopBatch(t *testing.T) {
	t.Parallel()

	repo := newFakeOutbox(lotCreated("a"), lotCreated("b"))
	repo.markErr = errors.New("connection reset")

	got := NewWorker(repo, &scriptedBroker{}, WithRetryBaseDelay(0)).ProcessOnce(context.Background())
	require.Equal(t, BatchResult{Pulled: 2, Sent: 2}, got)
}

func TestWorker_PullErrorLeavesBacklog(t *testing.T) {
	t.Parallel()

	repo := newFakeOutbox(lotCreated("a"))
	repo.pullErr = errors.New("pool exhausted")
	broker := &scriptedBroker{}

	require.Zero(t, NewWorker(repo, broker).ProcessOnce(context.Background()))
	require.Zero(t, broker.attempts())
}

func TestWorker_CancelLeavesEventsPending(t *testing.T) {
	t.Parallel()

	repo := newFakeOutbox(lotCreated("a"), lotCreated("b"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	broker := &cancelOnPublish{cancel: cancel}
	dlq := &scriptedBroker{}

	got := NewWorker(repo, broker, WithDLQPublisher(dlq), WithRetryBaseDelay(time.Hour)).ProcessOnce(ctx)

	require.Equal(t, BatchResult{Pulled: 2}, got)
	require.Equal(t, 1, broker.calls)
	require.Empty(t, repo.outcomeOf("a"))
	require.Empty(t, repo.outcomeOf("b"))
	require.Zero(t, dlq.attempts())
}

// cancelOnPublish отменяет ctx на первой публикации, будто сервис останавливают посреди батча.
type cancelOnPublish struct {
	cancel context.CancelFunc
	calls  int
}

func (p *cancelOnPublish) Publish(context.Context, domain.OutboxMessage) error {
	p.calls++
	p.cancel()
	return errors.New("broker unavailable")
}

func TestWorker_RetryBackoff(t *testing.T) {
	t.Parallel()

	w := NewWorker(nil, nil, WithRetryBaseDelay(100*time.Millisecond))
	require.Equal(t, 100*time.Millisecond, w.retryBackoff(1))
	require.Equal(t, 400*time.Millisecond, w.retryBackoff(3))
	require.Equal(t, maxRetryDelay, w.retryBackoff(30))

	require.Zero(t, NewWorker(nil, nil, WithRetryBaseDelay(-time.Second)).retryBackoff(5))
}

func TestWorker_OptionsIgnoreInvalidValues(t *testing.T) {
	t.Parallel()

	w := NewWorker(nil, nil, WithPollInterval(0), WithBatchSize(-1), WithMaxAttempts(0), WithLogger(nil))
	require.Equal(t, defaultPollInterval, w.pollInterval)
	require.Equal(t, defaultBatchSize, w.batchSize)
	require.Equal(t, defaultMaxAttempts, w.maxAttempts)
	require.NotNil(t, w.logger)
}

func gaugeValue(t *testing.T, write func(*dto.Metric) error) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, write(&m))
	return m.GetGauge().GetValue()
}

// Не параллельный: читает глобальные gauges backlog.
func TestWorker_ObservesBacklog(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	repo := newFakeOutbox(lotCreated("a"), lotCreated("b"))
	repo.oldestAt = now.Add(-90 * time.Second)

	w := NewWorker(repo, &scriptedBroker{}, WithBatchSize(1), WithRetryBaseDelay(0))
	w.now = func() time.Time { return now }
	w.ProcessOnce(context.Background())

	require.Equal(t, 1.0, gaugeValue(t, backlogSize.Write))
	require.Equal(t, 90.0, gaugeValue(t, backlogAge.Write))

	w.ProcessOnce(context.Background())
	require.Zero(t, gaugeValue(t, backlogSize.Write))
	require.Zero(t, gaugeValue(t, backlogAge.Write))
}

func TestWorker_RelaysLedgerEventsInOrder(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	ctx := context.Background()
	for _, eventType := range []string{"auction.created", "lot.created", "bid.placed"} {
		_, err := repo.Enqueue(ctx, domain.OutboxMessage{EventType: eventType, Payload: []byte(`{}`)})
		require.NoError(t, err)
	}
	broker := &scriptedBroker{}

	NewWorker(repo, broker, WithRetryBaseDelay(0)).ProcessOnce(ctx)

	require.Len(t, broker.published, 3)
	require.Equal(t, "auction.created", broker.published[0].EventType)
	require.Equal(t, "lot.created", broker.published[1].EventType)
	require.Equal(t, "bid.placed", broker.published[2].EventType)
	require.Empty(t, repo.AllPending())
}

func TestWorker_DrainEmptiesBacklog(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	ctx := context.Background()
	for range 5 {
		_, err := repo.Enqueue(ctx, domain.OutboxMessage{EventType: "bid.placed", Payload: []byte(`{}`)})
		require.NoError(t, err)
	}

	got := NewWorker(repo, &scriptedBroker{}, WithBatchSize(2), WithRetryBaseDelay(0)).Drain(ctx)

	require.Equal(t, BatchResult{Pulled: 5, Sent: 5}, got)
	require.Empty(t, repo.AllPending())
	require.Zero(t, NewWorker(nil, nil).Drain(ctx), "disabled worker does nothing")
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	repo := newFakeOutbox(lotCreated("a"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewWorker(repo, &scriptedBroker{}, WithPollInterval(5*time.Millisecond)).Run(ctx)
	}()

	require.Eventually(t, func() bool { return repo.outcomeOf("a") == "sent" }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}
