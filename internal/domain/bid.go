package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bid: ставка на лот с ключом (AuctionID, LotNr, BidNr). Неизменяема после создания.
type Bid struct {
	AuctionID       int64
	LotNr           int
	BidNr           int
	AccountID       int64
	IsCompany       bool
	IsCombination   bool
	BidPrice        decimal.Decimal
	BiddingDateTime time.Time
	// ClosingDateTime всегда равен AuctionEnd аукциона ставки.
	ClosingDateTime time.Time
}

// BidDraft: входные данные для создания ставки.
type BidDraft struct {
	AuctionID     int64
	LotNr         int
	AccountID     int64
	IsCompany     bool
	IsCombination bool
	BidPrice      decimal.Decimal
}

// Validate проверяет инварианты черновика ставки.
func (d BidDraft) Validate() error {
	if d.LotNr <= 0 {
		return ErrLotNrInvalid
	}
	if d.AccountID == 0 {
		return ErrAccountRequired
	}
	return validateNonNegative(d.BidPrice)
}

// NewBid собирает ставку; время ставки и закрытия передаёт вызывающая сторона.
func NewBid(draft BidDraft, bidNr int, biddingAt, closingAt time.Time) Bid {
	return Bid{
		AuctionID:       draft.AuctionID,
		LotNr:           draft.LotNr,
		BidNr:           bidNr,
		AccountID:       draft.AccountID,
		IsCompany:       draft.IsCompany,
		IsCombination:   draft.IsCombination,
		BidPrice:        Money(draft.BidPrice),
		BiddingDateTime: biddingAt,
		ClosingDateTime: closingAt,
	}
}
