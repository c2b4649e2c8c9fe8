package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

func ledgerEvent(eventType, aggregateID string) domain.OutboxMessage {
	return domain.OutboxMessage{
		AggregateType: "lot",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       []byte(`{"aggregate":"` + aggregateID + `"}`),
	}
}

func TestOutboxRepository_DeliveryLifecycle(t *testing.T) {
	repo := NewOutboxRepository(migratedStore(t))
	ctx := context.Background()

	generated, err := repo.Enqueue(ctx, ledgerEvent("lot.created", "lot:1:1"))
	require.NoError(t, err)
	require.NotEmpty(t, generated.ID)

	fixed := ledgerEvent("lot.created", "lot:1:2")
	fixed.ID = "outbox-lot-1-2"
	stored, err := repo.Enqueue(ctx, fixed)
	require.NoError(t, err)
	require.Equal(t, "outbox-lot-1-2", stored.ID)

	pending, err := repo.PullPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "lot:1:1", pending[0].AggregateID, "events come back in write order")
	require.JSONEq(t, `{"aggregate":"lot:1:2"}`, string(pending[1].Payload))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.PendingCount)
	require.False(t, stats.OldestPendingAt.IsZero())

	require.NoError(t, repo.MarkSent(ctx, generated.ID))
	require.NoError(t, repo.MarkFailed(ctx, stored.ID))

	pending, err = repo.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
	require.True(t, stats.OldestPendingAt.IsZero())
}

func TestOutboxRepository_UnknownEvent(t *testing.T) {
	repo := NewOutboxRepository(migratedStore(t))
	ctx := context.Background()

	require.ErrorIs(t, repo.MarkSent(ctx, "missing-outbox"), domain.ErrOutboxPublish)
	require.ErrorIs(t, repo.MarkFailed(ctx, "missing-outbox"), domain.ErrOutboxPublish)
}

func TestOutboxRepository_OldestPendingFollowsClock(t *testing.T) {
	repo := NewOutboxRepository(migratedStore(t))
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return base }
	first, err := repo.Enqueue(ctx, ledgerEvent("bid.placed", "bid:1:1:1"))
	require.NoError(t, err)

	repo.now = func() time.Time { return base.Add(time.Minute) }
	_, err = repo.Enqueue(ctx, ledgerEvent("bid.placed", "bid:1:1:2"))
	require.NoError(t, err)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.PendingCount)
	require.True(t, base.Equal(stats.OldestPendingAt))

	require.NoError(t, repo.MarkSent(ctx, first.ID))
	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	require.True(t, base.Add(time.Minute).Equal(stats.OldestPendingAt))
}
