package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

// Pinger: всё, что умеет проверить соединение с хранилищем.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorageChecker проверяет хранилище леджера через Ping.
func StorageChecker(store Pinger) Checker {
	return CheckerFunc(store.Ping)
}

// ModelChecker проверяет, что движок рекомендаций загружен и сетка ставок непуста.
func ModelChecker(gridSize func() int) Checker {
	return CheckerFunc(func(context.Context) error {
		if gridSize == nil {
			return errors.New("recommendation engine is not configured")
		}
		if gridSize() == 0 {
			return errors.New("starting bid grid is empty")
		}
		return nil
	})
}

// OutboxBacklogChecker падает, когда старейшее pending-событие outbox старше maxAge.
// maxAge <= 0 отключает порог, остаётся только проверка доступности статистики.
type OutboxBacklogChecker struct {
	repo   domain.OutboxRepository
	maxAge time.Duration
	now    func() time.Time
}

func NewOutboxBacklogChecker(repo domain.OutboxRepository, maxAge time.Duration) *OutboxBacklogChecker {
	return &OutboxBacklogChecker{repo: repo, maxAge: maxAge, now: time.Now}
}

func (c *OutboxBacklogChecker) Check(ctx context.Context) error {
	stats, err := c.repo.Stats(ctx)
	if err != nil {
		return fmt.Errorf("outbox stats: %w", err)
	}
	if stats.PendingCount == 0 || c.maxAge <= 0 {
		return nil
	}
	if age := c.now().Sub(stats.OldestPendingAt); age > c.maxAge {
		return fmt.Errorf("%d pending events, oldest waits %s", stats.PendingCount, age.Truncate(time.Second))
	}
	return nil
}
