// Package sqlite реализует хранилище леджера поверх SQLite через gorm.
//
// SQLite допускает одного писателя, поэтому пул ограничен одним соединением:
// транзакции выполняются строго по очереди и блокировки областей не нужны.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

// LedgerStore реализует domain.LedgerStore поверх gorm/SQLite.
type LedgerStore struct {
	db *gorm.DB
}

// Open открывает базу по dsn (файл или ":memory:") и применяет схему.
func Open(ctx context.Context, dsn string) (*LedgerStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is empty")
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite raw db: %w", err)
	}
	// ":memory:" живёт, пока живо соединение.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	store := &LedgerStore{db: db}
	if err := store.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

// Migrate создаёт недостающие таблицы и индексы.
func (s *LedgerStore) Migrate(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store is not initialized")
	}
	if err := s.db.WithContext(ctx).AutoMigrate(&auctionRow{}, &lotRow{}, &bidRow{}, &outboxRow{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Outbox возвращает репозиторий outbox поверх той же базы.
func (s *LedgerStore) Outbox() *OutboxRepository {
	return &OutboxRepository{db: s.db}
}

// Ping проверяет доступность базы.
func (s *LedgerStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close закрывает соединение.
func (s *LedgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithinTx выполняет fn в транзакции gorm.
func (s *LedgerStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(txDB *gorm.DB) error {
		if err := fn(ctx, &ledgerTx{db: txDB}); err != nil {
			return err
		}
		return ctx.Err()
	})
}

func (s *LedgerStore) GetAuction(ctx context.Context, id int64) (domain.Auction, error) {
	return getAuction(s.db.WithContext(ctx), id)
}

func (s *LedgerStore) GetLot(ctx context.Context, auctionID int64, lotNr int) (domain.Lot, error) {
	return getLot(s.db.WithContext(ctx), auctionID, lotNr)
}

func (s *LedgerStore) ListAuctions(ctx context.Context, offset, limit int) ([]domain.Auction, error) {
	var rows []auctionRow
	if err := s.db.WithContext(ctx).Order("id").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	result := make([]domain.Auction, 0, len(rows))
	for _, r := range rows {
		result = append(result, auctionFromRow(r))
	}
	return result, nil
}

func (s *LedgerStore) ListLots(ctx context.Context, auctionID int64, offset, limit int) ([]domain.Lot, error) {
	var rows []lotRow
	err := s.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("lot_nr").Offset(offset).Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	result := make([]domain.Lot, 0, len(rows))
	for _, r := range rows {
		lot, err := lotFromRow(r)
		if err != nil {
			return nil, err
		}
		result = append(result, lot)
	}
	return result, nil
}

func (s *LedgerStore) ListBids(ctx context.Context, auctionID int64, lotNr int, offset, limit int) ([]domain.Bid, error) {
	var rows []bidRow
	err := s.db.WithContext(ctx).
		Where("auction_id = ? AND lot_nr = ?", auctionID, lotNr).
		Order("bid_nr").Offset(offset).Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	result := make([]domain.Bid, 0, len(rows))
	for _, r := range rows {
		bid, err := bidFromRow(r)
		if err != nil {
			return nil, err
		}
		result = append(result, bid)
	}
	return result, nil
}

type ledgerTx struct {
	db *gorm.DB
}

// LockScope ничего не делает: соединение одно, транзакция уже эксклюзивна.
func (t *ledgerTx) LockScope(ctx context.Context, _ string) error {
	return ctx.Err()
}

func (t *ledgerTx) InsertAuction(ctx context.Context, draft domain.AuctionDraft) (domain.Auction, error) {
	row := auctionRow{
		RelatedCompany: draft.RelatedCompany,
		AuctionStart:   draft.AuctionStart.UTC(),
		AuctionEnd:     draft.AuctionEnd.UTC(),
		BranchCategory: draft.BranchCategory,
	}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.Auction{}, mapError("insert auction", err)
	}
	return auctionFromRow(row), nil
}

func (t *ledgerTx) InsertLot(ctx context.Context, lot domain.Lot) error {
	db := t.db.WithContext(ctx)
	var parents int64
	if err := db.Model(&auctionRow{}).Where("id = ?", lot.AuctionID).Count(&parents).Error; err != nil {
		return mapError("insert lot", err)
	}
	if parents == 0 {
		return fmt.Errorf("insert lot: auction %d missing: %w", lot.AuctionID, domain.ErrConstraintViolation)
	}
	row := lotToRow(lot)
	return mapError("insert lot", db.Create(&row).Error)
}

func (t *ledgerTx) InsertBid(ctx context.Context, bid domain.Bid) error {
	db := t.db.WithContext(ctx)
	var parents int64
	err := db.Model(&lotRow{}).
		Where("auction_id = ? AND lot_nr = ?", bid.AuctionID, bid.LotNr).
		Count(&parents).Error
	if err != nil {
		return mapError("insert bid", err)
	}
	if parents == 0 {
		return fmt.Errorf("insert bid: lot %d/%d missing: %w", bid.AuctionID, bid.LotNr, domain.ErrConstraintViolation)
	}
	row := bidToRow(bid)
	return mapError("insert bid", db.Create(&row).Error)
}

func (t *ledgerTx) QueryAuctionsByCompany(ctx context.Context, company string) ([]domain.Auction, error) {
	var rows []auctionRow
	if err := t.db.WithContext(ctx).Where("related_company = ?", company).Order("id").Find(&rows).Error; err != nil {
		return nil, mapError("query auctions by company", err)
	}
	result := make([]domain.Auction, 0, len(rows))
	for _, r := range rows {
		result = append(result, auctionFromRow(r))
	}
	return result, nil
}

func (t *ledgerTx) MaxLotNrForAuction(ctx context.Context, auctionID int64) (int, error) {
	var maxNr int
	err := t.db.WithContext(ctx).Model(&lotRow{}).
		Where("auction_id = ?", auctionID).
		Select("COALESCE(MAX(lot_nr), 0)").
		Scan(&maxNr).Error
	if err != nil {
		return 0, mapError("max lot nr", err)
	}
	return maxNr, nil
}

func (t *ledgerTx) MaxBidNrForLot(ctx context.Context, auctionID int64, lotNr int) (int, error) {
	var maxNr int
	err := t.db.WithContext(ctx).Model(&bidRow{}).
		Where("auction_id = ? AND lot_nr = ?", auctionID, lotNr).
		Select("COALESCE(MAX(bid_nr), 0)").
		Scan(&maxNr).Error
	if err != nil {
		return 0, mapError("max bid nr", err)
	}
	return maxNr, nil
}

func (t *ledgerTx) GetAuctionByID(ctx context.Context, id int64) (domain.Auction, error) {
	return getAuction(t.db.WithContext(ctx), id)
}

func (t *ledgerTx) GetLotByKey(ctx context.Context, auctionID int64, lotNr int) (domain.Lot, error) {
	return getLot(t.db.WithContext(ctx), auctionID, lotNr)
}

func (t *ledgerTx) EnqueueOutbox(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return insertOutbox(t.db.WithContext(ctx), msg, time.Now().UTC())
}

func getAuction(db *gorm.DB, id int64) (domain.Auction, error) {
	var row auctionRow
	err := db.Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Auction{}, fmt.Errorf("auction %d: %w", id, domain.ErrAuctionNotFound)
	}
	if err != nil {
		return domain.Auction{}, fmt.Errorf("get auction: %w", err)
	}
	return auctionFromRow(row), nil
}

func getLot(db *gorm.DB, auctionID int64, lotNr int) (domain.Lot, error) {
	var row lotRow
	err := db.Where("auction_id = ? AND lot_nr = ?", auctionID, lotNr).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Lot{}, fmt.Errorf("lot %d/%d: %w", auctionID, lotNr, domain.ErrLotNotFound)
	}
	if err != nil {
		return domain.Lot{}, fmt.Errorf("get lot: %w", err)
	}
	return lotFromRow(row)
}

func insertOutbox(db *gorm.DB, msg domain.OutboxMessage, now time.Time) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	var seq int64
	if err := db.Model(&outboxRow{}).Select("COALESCE(MAX(seq), 0)").Scan(&seq).Error; err != nil {
		return domain.OutboxMessage{}, mapError("outbox seq", err)
	}

	row := outboxRow{
		ID:            msg.ID,
		Seq:           seq + 1,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       msg.Payload,
		Status:        outboxStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := db.Create(&row).Error; err != nil {
		return domain.OutboxMessage{}, mapError("enqueue outbox message", err)
	}
	return msg, nil
}

func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrConstraintViolation, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var (
	_ domain.LedgerStore = (*LedgerStore)(nil)
	_ domain.LedgerTx    = (*ledgerTx)(nil)
)
