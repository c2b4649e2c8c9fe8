package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
	"github.com/vladislavdragonenkov/auctionledger/internal/storage/memory"
)

// Повтор POST /lots с тем же ключом: захват, конфликт, сохранённый ответ и уборка истёкших ключей.
func TestIdempotencyRepository_LotRequestLifecycle(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ctx := context.Background()
	now := time.Now().UTC()
	ttl := now.Add(2 * time.Hour).Round(time.Second)
	const key = "POST /lots lt-1"

	claim, err := repo.CreateProcessing(ctx, key, "body-a", ttl)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusProcessing, claim.Status)

	_, err = repo.CreateProcessing(ctx, key, "body-a", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists, "retry while the first request is in flight")
	_, err = repo.CreateProcessing(ctx, key, "body-b", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch, "same key, different lot")

	require.NoError(t, repo.MarkDone(ctx, key, []byte(`{"auctionID":1,"lotNr":1}`), 201))
	stored, err := repo.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, stored.Status)
	require.Equal(t, 201, stored.HTTPStatus)
	require.Equal(t, "body-a", stored.RequestHash)
	require.True(t, ttl.Equal(stored.TTLAt))
	require.JSONEq(t, `{"auctionID":1,"lotNr":1}`, string(stored.ResponseBody))

	_, err = repo.CreateProcessing(ctx, "POST /lots stale", "body-c", now.Add(-time.Minute))
	require.NoError(t, err)
	removed, err := repo.DeleteExpired(ctx, now, 10)
	require.NoError(t, err)
	require.Equal(t, 1, removed, "only the stale key is swept")
	_, err = repo.Get(ctx, key)
	require.NoError(t, err)
}

func TestIdempotencyRepository_CancelledContext(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := repo.CreateProcessing(ctx, "idem-cancel", "hash", time.Now().Add(time.Hour)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := repo.Get(context.Background(), "idem-cancel"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected key to be absent, got %v", err)
	}
}

func TestIdempotencyRepository_ExpiredKeyIsReclaimed(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ctx := context.Background()

	if _, err := repo.CreateProcessing(ctx, "POST /auctions k", "hash-old", time.Now().UTC().Add(-time.Second)); err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}
	if _, err := repo.Get(ctx, "POST /auctions k"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expired key must look absent, got %v", err)
	}

	claim, err := repo.CreateProcessing(ctx, "POST /auctions k", "hash-new", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("expired key must be reclaimable, got %v", err)
	}
	if claim.RequestHash != "hash-new" || claim.Status != domain.IdempotencyStatusProcessing {
		t.Fatalf("unexpected reclaimed record: %+v", claim)
	}
}

func TestIdempotencyRepository_DeleteExpiredOldestFirst(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	for key, age := range map[string]time.Duration{"k-old": 3 * time.Hour, "k-mid": 2 * time.Hour, "k-new": time.Hour} {
		if _, err := repo.CreateProcessing(ctx, key, "h", now.Add(-age)); err != nil {
			t.Fatalf("CreateProcessing %s failed: %v", key, err)
		}
	}

	removed, err := repo.DeleteExpired(ctx, now, 2)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected removed=2, got %d", removed)
	}
	// Истёкший ключ невидим для Get, поэтому проверяем остаток следующим батчем.
	if removed, _ := repo.DeleteExpired(ctx, now.Add(-90*time.Minute), 10); removed != 0 {
		t.Fatalf("two oldest keys must be removed first, %d older than 90m left", removed)
	}
	if removed, _ := repo.DeleteExpired(ctx, now, 10); removed != 1 {
		t.Fatalf("expected the newest expired key to remain, removed %d", removed)
	}
}

func TestIdempotencyRepository_MarkUnknownKey(t *testing.T) {
	repo := memory.NewIdempotencyRepository()

	if err := repo.MarkFailed(context.Background(), "missing", []byte(`{}`), 500); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound, got %v", err)
	}
}

func TestIdempotencyRepository_ReleaseOnlyInFlightKey(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ctx := context.Background()
	ttl := time.Now().UTC().Add(time.Hour)

	_, err := repo.CreateProcessing(ctx, "POST /bids busy", "hash", ttl)
	require.NoError(t, err)
	require.NoError(t, repo.Release(ctx, "POST /bids busy"))
	_, err = repo.Get(ctx, "POST /bids busy")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

	_, err = repo.CreateProcessing(ctx, "POST /bids busy", "hash", ttl)
	require.NoError(t, err, "released key is claimed again")

	require.NoError(t, repo.MarkDone(ctx, "POST /bids busy", []byte(`{"bidNr":1}`), 201))
	require.ErrorIs(t, repo.Release(ctx, "POST /bids busy"), domain.ErrIdempotencyKeyNotFound, "stored response stays")
	require.ErrorIs(t, repo.Release(ctx, "POST /bids missing"), domain.ErrIdempotencyKeyNotFound)
	require.ErrorIs(t, repo.Release(ctx, " "), domain.ErrIdempotencyKeyRequired)
}
