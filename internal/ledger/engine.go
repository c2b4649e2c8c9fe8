// Package ledger содержит правила согласованности аукционов, лотов и ставок:
// проверку пересечения аукционов компании, нумерацию лотов и ставок и расчёт времени закрытия ставки.
//
// Все функции работают внутри транзакции, открытой вызывающей стороной, и берут блокировку
// своей области до чтения, так что чтение и последующая вставка атомарны для конкурентов.
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

// Имена областей блокировки.
const (
	ScopeCompany = "company"
	ScopeLots    = "lots"
	ScopeBids    = "bids"
)

// CompanyScope: область проверки пересечений аукционов компании.
func CompanyScope(company string) string {
	return ScopeCompany + ":" + company
}

// LotsScope: область нумерации лотов аукциона.
func LotsScope(auctionID int64) string {
	return ScopeLots + ":" + strconv.FormatInt(auctionID, 10)
}

// BidsScope: область нумерации ставок лота.
func BidsScope(auctionID int64, lotNr int) string {
	return ScopeBids + ":" + strconv.FormatInt(auctionID, 10) + ":" + strconv.Itoa(lotNr)
}

// PrepareAuction проверяет черновик и отсутствие пересечений с аукционами той же компании.
// Возвращает черновик, готовый к вставке в той же транзакции.
func PrepareAuction(ctx context.Context, tx domain.LedgerTx, draft domain.AuctionDraft) (domain.AuctionDraft, error) {
	if err := draft.Validate(); err != nil {
		return domain.AuctionDraft{}, err
	}
	if err := tx.LockScope(ctx, CompanyScope(draft.RelatedCompany)); err != nil {
		return domain.AuctionDraft{}, fmt.Errorf("lock company scope: %w", err)
	}

	existing, err := tx.QueryAuctionsByCompany(ctx, draft.RelatedCompany)
	if err != nil {
		return domain.AuctionDraft{}, fmt.Errorf("query company auctions: %w", err)
	}
	for _, auction := range existing {
		if auction.Overlaps(draft.AuctionStart, draft.AuctionEnd) {
			return domain.AuctionDraft{}, &domain.OverlapError{
				Company:              draft.RelatedCompany,
				ConflictingAuctionID: auction.ID,
			}
		}
	}
	return draft, nil
}

// NextLotNumber возвращает следующий номер лота аукциона, начиная с 1.
func NextLotNumber(ctx context.Context, tx domain.LedgerTx, auctionID int64) (int, error) {
	if err := tx.LockScope(ctx, LotsScope(auctionID)); err != nil {
		return 0, fmt.Errorf("lock lots scope: %w", err)
	}
	maxNr, err := tx.MaxLotNrForAuction(ctx, auctionID)
	if err != nil {
		return 0, fmt.Errorf("max lot number: %w", err)
	}
	return maxNr + 1, nil
}

// NextBidNumber возвращает следующий номер ставки лота, начиная с 1.
func NextBidNumber(ctx context.Context, tx domain.LedgerTx, auctionID int64, lotNr int) (int, error) {
	if err := tx.LockScope(ctx, BidsScope(auctionID, lotNr)); err != nil {
		return 0, fmt.Errorf("lock bids scope: %w", err)
	}
	maxNr, err := tx.MaxBidNrForLot(ctx, auctionID, lotNr)
	if err != nil {
		return 0, fmt.Errorf("max bid number: %w", err)
	}
	return maxNr + 1, nil
}

// ValidateLotReference проверяет, что аукцион существует.
func ValidateLotReference(ctx context.Context, tx domain.LedgerTx, auctionID int64) (domain.Auction, error) {
	auction, err := tx.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("auction %d: %w", auctionID, err)
	}
	return auction, nil
}

// ValidateBidReference проверяет, что лот существует.
func ValidateBidReference(ctx context.Context, tx domain.LedgerTx, auctionID int64, lotNr int) (domain.Lot, error) {
	lot, err := tx.GetLotByKey(ctx, auctionID, lotNr)
	if err != nil {
		return domain.Lot{}, fmt.Errorf("lot %d/%d: %w", auctionID, lotNr, err)
	}
	return lot, nil
}

// ResolveClosingTime возвращает время окончания аукциона ставки.
func ResolveClosingTime(ctx context.Context, tx domain.LedgerTx, auctionID int64) (time.Time, error) {
	auction, err := tx.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return time.Time{}, fmt.Errorf("resolve closing time for auction %d: %w", auctionID, err)
	}
	return auction.AuctionEnd, nil
}
