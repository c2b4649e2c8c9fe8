package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

const (
	auctionColumns = `id, related_company, auction_start, auction_end, branch_category`
	lotColumns     = `auction_id, lot_nr, number_of_items, estimated_value, reserve_bid, starting_bid,
		current_bid, buyer_account_id, sold, country_code, vat, suffix, sale_date, main_category`
	bidColumns = `auction_id, lot_nr, bid_nr, account_id, is_company, is_combination,
		bid_price, bidding_date_time, closing_date_time`
)

// queryer покрывает общую часть *sql.DB и *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// LedgerStore реализует domain.LedgerStore поверх PostgreSQL.
//
// Транзакции идут на уровне READ COMMITTED: взаимное исключение внутри scope
// обеспечивают транзакционные advisory-блокировки, а первичные и внешние ключи
// ловят всё, что проскочило мимо них.
type LedgerStore struct {
	store *Store
}

// NewLedgerStore создаёт PostgreSQL-реализацию LedgerStore.
func NewLedgerStore(store *Store) *LedgerStore {
	return &LedgerStore{store: store}
}

// Ping проверяет доступность базы.
func (s *LedgerStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// WithinTx выполняет fn в одной транзакции. Ошибка fn или отмена ctx
// откатывают все изменения, включая сообщения outbox.
func (s *LedgerStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	sqlTx, err := s.store.DB().BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mapError("begin ledger tx", err)
	}

	if err := fn(ctx, &ledgerTx{q: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return mapError("commit ledger tx", err)
	}
	return nil
}

func (s *LedgerStore) GetAuction(ctx context.Context, id int64) (domain.Auction, error) {
	return getAuction(ctx, s.store.DB(), id)
}

func (s *LedgerStore) GetLot(ctx context.Context, auctionID int64, lotNr int) (domain.Lot, error) {
	return getLot(ctx, s.store.DB(), auctionID, lotNr)
}

func (s *LedgerStore) ListAuctions(ctx context.Context, offset, limit int) ([]domain.Auction, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	rows, err := s.store.DB().QueryContext(ctx, `
		SELECT `+auctionColumns+`
		FROM auctions
		ORDER BY id
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, mapError("list auctions", err)
	}
	return collectAuctions(rows)
}

func (s *LedgerStore) ListLots(ctx context.Context, auctionID int64, offset, limit int) ([]domain.Lot, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	rows, err := s.store.DB().QueryContext(ctx, `
		SELECT `+lotColumns+`
		FROM lots
		WHERE auction_id = $1
		ORDER BY lot_nr
		OFFSET $2 LIMIT $3
	`, auctionID, offset, limit)
	if err != nil {
		return nil, mapError("list lots", err)
	}
	defer rows.Close()

	result := make([]domain.Lot, 0)
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lot rows: %w", err)
	}
	return result, nil
}

func (s *LedgerStore) ListBids(ctx context.Context, auctionID int64, lotNr int, offset, limit int) ([]domain.Bid, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	rows, err := s.store.DB().QueryContext(ctx, `
		SELECT `+bidColumns+`
		FROM bids
		WHERE auction_id = $1 AND lot_nr = $2
		ORDER BY bid_nr
		OFFSET $3 LIMIT $4
	`, auctionID, lotNr, offset, limit)
	if err != nil {
		return nil, mapError("list bids", err)
	}
	defer rows.Close()

	result := make([]domain.Bid, 0)
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, bid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bid rows: %w", err)
	}
	return result, nil
}

type ledgerTx struct {
	q queryer
}

// LockScope берёт транзакционную advisory-блокировку по хэшу имени scope.
// Блокировка снимается на commit/rollback.
func (t *ledgerTx) LockScope(ctx context.Context, scope string) error {
	if _, err := t.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, scope); err != nil {
		return mapError(fmt.Sprintf("lock scope %s", scope), err)
	}
	return nil
}

func (t *ledgerTx) InsertAuction(ctx context.Context, draft domain.AuctionDraft) (domain.Auction, error) {
	auction := domain.Auction{
		RelatedCompany: draft.RelatedCompany,
		AuctionStart:   draft.AuctionStart.UTC(),
		AuctionEnd:     draft.AuctionEnd.UTC(),
		BranchCategory: draft.BranchCategory,
	}
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO auctions (related_company, auction_start, auction_end, branch_category)
		VALUES ($1,$2,$3,$4)
		RETURNING id, auction_start, auction_end
	`, auction.RelatedCompany, auction.AuctionStart, auction.AuctionEnd, auction.BranchCategory).
		Scan(&auction.ID, &auction.AuctionStart, &auction.AuctionEnd)
	if err != nil {
		return domain.Auction{}, mapError("insert auction", err)
	}
	// TIMESTAMPTZ хранит микросекунды: отдаём время так, как его прочитают ставки.
	auction.AuctionStart = auction.AuctionStart.UTC()
	auction.AuctionEnd = auction.AuctionEnd.UTC()
	return auction, nil
}

func (t *ledgerTx) InsertLot(ctx context.Context, lot domain.Lot) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO lots (`+lotColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		lot.AuctionID,
		lot.LotNr,
		lot.NumberOfItems,
		lot.EstimatedValue,
		lot.ReserveBid,
		lot.StartingBid,
		lot.CurrentBid,
		lot.BuyerAccountID,
		lot.Sold,
		lot.CountryCode,
		lot.VAT,
		lot.Suffix,
		lot.SaleDate.UTC(),
		lot.MainCategory,
	)
	return mapError("insert lot", err)
}

func (t *ledgerTx) InsertBid(ctx context.Context, bid domain.Bid) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO bids (`+bidColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		bid.AuctionID,
		bid.LotNr,
		bid.BidNr,
		bid.AccountID,
		bid.IsCompany,
		bid.IsCombination,
		bid.BidPrice,
		bid.BiddingDateTime.UTC(),
		bid.ClosingDateTime.UTC(),
	)
	return mapError("insert bid", err)
}

func (t *ledgerTx) QueryAuctionsByCompany(ctx context.Context, company string) ([]domain.Auction, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT `+auctionColumns+`
		FROM auctions
		WHERE related_company = $1
		ORDER BY id
	`, company)
	if err != nil {
		return nil, mapError("query auctions by company", err)
	}
	return collectAuctions(rows)
}

func (t *ledgerTx) MaxLotNrForAuction(ctx context.Context, auctionID int64) (int, error) {
	var maxNr int
	err := t.q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(lot_nr), 0) FROM lots WHERE auction_id = $1
	`, auctionID).Scan(&maxNr)
	if err != nil {
		return 0, mapError("max lot nr", err)
	}
	return maxNr, nil
}

func (t *ledgerTx) MaxBidNrForLot(ctx context.Context, auctionID int64, lotNr int) (int, error) {
	var maxNr int
	err := t.q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(bid_nr), 0) FROM bids WHERE auction_id = $1 AND lot_nr = $2
	`, auctionID, lotNr).Scan(&maxNr)
	if err != nil {
		return 0, mapError("max bid nr", err)
	}
	return maxNr, nil
}

func (t *ledgerTx) GetAuctionByID(ctx context.Context, id int64) (domain.Auction, error) {
	return getAuction(ctx, t.q, id)
}

func (t *ledgerTx) GetLotByKey(ctx context.Context, auctionID int64, lotNr int) (domain.Lot, error) {
	return getLot(ctx, t.q, auctionID, lotNr)
}

func (t *ledgerTx) EnqueueOutbox(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return insertOutbox(ctx, t.q, msg, time.Now().UTC())
}

func getAuction(ctx context.Context, q queryer, id int64) (domain.Auction, error) {
	row := q.QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id)
	auction, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Auction{}, fmt.Errorf("auction %d: %w", id, domain.ErrAuctionNotFound)
	}
	return auction, err
}

func getLot(ctx context.Context, q queryer, auctionID int64, lotNr int) (domain.Lot, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+lotColumns+` FROM lots WHERE auction_id = $1 AND lot_nr = $2
	`, auctionID, lotNr)
	lot, err := scanLot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Lot{}, fmt.Errorf("lot %d/%d: %w", auctionID, lotNr, domain.ErrLotNotFound)
	}
	return lot, err
}

func insertOutbox(ctx context.Context, q queryer, msg domain.OutboxMessage, now time.Time) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type, payload,
			status, attempt_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,'pending',0,$6,$7)
	`,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, now, now,
	)
	if err != nil {
		return domain.OutboxMessage{}, mapError("enqueue outbox message", err)
	}
	return msg, nil
}

func collectAuctions(rows *sql.Rows) ([]domain.Auction, error) {
	defer rows.Close()

	result := make([]domain.Auction, 0)
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, auction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate auction rows: %w", err)
	}
	return result, nil
}

func scanAuction(row rowScanner) (domain.Auction, error) {
	var a domain.Auction
	if err := row.Scan(&a.ID, &a.RelatedCompany, &a.AuctionStart, &a.AuctionEnd, &a.BranchCategory); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Auction{}, err
		}
		return domain.Auction{}, fmt.Errorf("scan auction: %w", err)
	}
	a.AuctionStart = a.AuctionStart.UTC()
	a.AuctionEnd = a.AuctionEnd.UTC()
	return a, nil
}

func scanLot(row rowScanner) (domain.Lot, error) {
	var l domain.Lot
	err := row.Scan(
		&l.AuctionID,
		&l.LotNr,
		&l.NumberOfItems,
		&l.EstimatedValue,
		&l.ReserveBid,
		&l.StartingBid,
		&l.CurrentBid,
		&l.BuyerAccountID,
		&l.Sold,
		&l.CountryCode,
		&l.VAT,
		&l.Suffix,
		&l.SaleDate,
		&l.MainCategory,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Lot{}, err
		}
		return domain.Lot{}, fmt.Errorf("scan lot: %w", err)
	}
	l.SaleDate = l.SaleDate.UTC()
	return l, nil
}

func scanBid(row rowScanner) (domain.Bid, error) {
	var b domain.Bid
	err := row.Scan(
		&b.AuctionID,
		&b.LotNr,
		&b.BidNr,
		&b.AccountID,
		&b.IsCompany,
		&b.IsCombination,
		&b.BidPrice,
		&b.BiddingDateTime,
		&b.ClosingDateTime,
	)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("scan bid: %w", err)
	}
	b.BiddingDateTime = b.BiddingDateTime.UTC()
	b.ClosingDateTime = b.ClosingDateTime.UTC()
	return b, nil
}

var (
	_ domain.LedgerStore = (*LedgerStore)(nil)
	_ domain.LedgerTx    = (*ledgerTx)(nil)
)
