package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

const (
	defaultMaxAttempts    = 5
	defaultRetryBaseDelay = 10 * time.Millisecond
	defaultRetryMaxDelay  = 200 * time.Millisecond
)

// RetryPolicy задаёт повторы транзакции при конфликте последовательности.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy возвращает политику по умолчанию.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultRetryBaseDelay,
		MaxDelay:    defaultRetryMaxDelay,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// backoff возвращает паузу после attempt-й неудачной попытки (attempt с 1).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// retryOnConflict повторяет fn, пока она возвращает ErrConstraintViolation.
// Остальные ошибки возвращаются сразу.
func retryOnConflict(ctx context.Context, policy RetryPolicy, onConflict func(attempt int, err error), fn func() error) error {
	policy = policy.normalized()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrConstraintViolation) {
			return err
		}
		lastErr = err
		if onConflict != nil {
			onConflict(attempt, err)
		}
		if attempt == policy.MaxAttempts {
			break
		}

		timer := time.NewTimer(policy.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", domain.ErrSequenceContention, policy.MaxAttempts, lastErr)
}
