package domain

import (
	"context"
	"time"
)

// LedgerStore: транзакционное хранилище аукционов, лотов и ставок.
type LedgerStore interface {
	LedgerReader
	// WithinTx выполняет fn в одной транзакции.
	// Ошибка fn или отмена ctx откатывают транзакцию целиком.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
}

// LedgerTx: операции хранилища внутри транзакции, открытой вызывающей стороной.
type LedgerTx interface {
	// LockScope берёт эксклюзивную блокировку области (компания, аукцион, лот) до конца транзакции.
	LockScope(ctx context.Context, scope string) error

	// InsertAuction сохраняет аукцион и назначает ему идентификатор.
	InsertAuction(ctx context.Context, draft AuctionDraft) (Auction, error)
	// InsertLot сохраняет лот; дубликат ключа или отсутствующий аукцион дают ErrConstraintViolation.
	InsertLot(ctx context.Context, lot Lot) error
	// InsertBid сохраняет ставку; дубликат ключа или отсутствующий лот дают ErrConstraintViolation.
	InsertBid(ctx context.Context, bid Bid) error

	QueryAuctionsByCompany(ctx context.Context, company string) ([]Auction, error)
	// MaxLotNrForAuction возвращает 0, если у аукциона нет лотов.
	MaxLotNrForAuction(ctx context.Context, auctionID int64) (int, error)
	// MaxBidNrForLot возвращает 0, если у лота нет ставок.
	MaxBidNrForLot(ctx context.Context, auctionID int64, lotNr int) (int, error)
	GetAuctionByID(ctx context.Context, id int64) (Auction, error)
	GetLotByKey(ctx context.Context, auctionID int64, lotNr int) (Lot, error)

	// EnqueueOutbox пишет событие в outbox в той же транзакции.
	EnqueueOutbox(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
}

// LedgerReader: чтение леджера вне пишущих транзакций.
type LedgerReader interface {
	GetAuction(ctx context.Context, id int64) (Auction, error)
	GetLot(ctx context.Context, auctionID int64, lotNr int) (Lot, error)
	ListAuctions(ctx context.Context, offset, limit int) ([]Auction, error)
	ListLots(ctx context.Context, auctionID int64, offset, limit int) ([]Lot, error)
	ListBids(ctx context.Context, auctionID int64, lotNr int, offset, limit int) ([]Bid, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository отдаёт накопленные события воркеру публикации.
type OutboxRepository interface {
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по Idempotency-Key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	// Release освобождает ключ в статусе processing, чтобы повтор запроса выполнился заново.
	Release(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
