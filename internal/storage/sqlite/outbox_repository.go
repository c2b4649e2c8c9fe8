package sqlite

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"

	defaultPullLimit = 100
)

// OutboxRepository реализует domain.OutboxRepository поверх той же базы, что и LedgerStore.
type OutboxRepository struct {
	db *gorm.DB
}

func (r *OutboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultPullLimit
	}

	var rows []outboxRow
	err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("seq").Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox messages: %w", err)
	}

	result := make([]domain.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		result = append(result, domain.OutboxMessage{
			ID:            row.ID,
			AggregateType: row.AggregateType,
			AggregateID:   row.AggregateID,
			EventType:     row.EventType,
			Payload:       append([]byte(nil), row.Payload...),
		})
	}
	return result, nil
}

func (r *OutboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats

	var oldest outboxRow
	res := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("seq").Limit(1).
		Find(&oldest)
	if res.Error != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats query failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return stats, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&outboxRow{}).Where("status = ?", outboxStatusPending).Count(&count).Error; err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats count failed: %w", err)
	}
	stats.PendingCount = int(count)
	stats.OldestPendingAt = oldest.CreatedAt.UTC()
	return stats, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, outboxStatusSent)
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, outboxStatusFailed)
}

func (r *OutboxRepository) markStatus(ctx context.Context, id, status string) error {
	res := r.db.WithContext(ctx).Model(&outboxRow{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        status,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("mark outbox message as %s: %w", status, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrOutboxPublish
	}
	return nil
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
