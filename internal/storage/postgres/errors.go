package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

const (
	opTimeout = 5 * time.Second

	sqlStateUniqueViolation      = "23505"
	sqlStateForeignKeyViolation  = "23503"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// isConstraintViolation распознаёт ошибки, после которых операцию можно повторить:
// дубликат ключа, отсутствующий родитель, конфликт сериализации и deadlock.
func isConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case sqlStateUniqueViolation, sqlStateForeignKeyViolation,
		sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return true
	default:
		return false
	}
}

// mapError оборачивает ошибку драйвера в доменную, сохраняя исходный текст.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isConstraintViolation(err) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrConstraintViolation, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func withOpTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}
