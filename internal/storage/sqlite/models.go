package sqlite

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

// Денежные суммы хранятся текстом, чтобы SQLite не приводил их к REAL.

type auctionRow struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	RelatedCompany string    `gorm:"type:text;not null;index:idx_auctions_company"`
	AuctionStart   time.Time `gorm:"not null"`
	AuctionEnd     time.Time `gorm:"not null"`
	BranchCategory string    `gorm:"type:text;not null;default:''"`
}

func (auctionRow) TableName() string { return "auctions" }

type lotRow struct {
	AuctionID      int64     `gorm:"primaryKey;autoIncrement:false"`
	LotNr          int       `gorm:"primaryKey;autoIncrement:false"`
	NumberOfItems  int       `gorm:"not null"`
	EstimatedValue string    `gorm:"type:text;not null"`
	ReserveBid     string    `gorm:"type:text;not null"`
	StartingBid    string    `gorm:"type:text;not null"`
	CurrentBid     string    `gorm:"type:text;not null"`
	BuyerAccountID int64     `gorm:"not null"`
	Sold           bool      `gorm:"not null"`
	CountryCode    string    `gorm:"type:text;not null"`
	VAT            int       `gorm:"column:vat;not null"`
	Suffix         string    `gorm:"type:text;not null"`
	SaleDate       time.Time `gorm:"not null"`
	MainCategory   string    `gorm:"type:text;not null;default:''"`
}

func (lotRow) TableName() string { return "lots" }

type bidRow struct {
	AuctionID       int64     `gorm:"primaryKey;autoIncrement:false"`
	LotNr           int       `gorm:"primaryKey;autoIncrement:false"`
	BidNr           int       `gorm:"primaryKey;autoIncrement:false"`
	AccountID       int64     `gorm:"not null"`
	IsCompany       bool      `gorm:"not null"`
	IsCombination   bool      `gorm:"not null"`
	BidPrice        string    `gorm:"type:text;not null"`
	BiddingDateTime time.Time `gorm:"not null"`
	ClosingDateTime time.Time `gorm:"not null"`
}

func (bidRow) TableName() string { return "bids" }

type outboxRow struct {
	ID            string    `gorm:"primaryKey;type:text"`
	Seq           int64     `gorm:"not null;index:idx_outbox_pending"`
	AggregateType string    `gorm:"type:text;not null"`
	AggregateID   string    `gorm:"type:text;not null"`
	EventType     string    `gorm:"type:text;not null"`
	Payload       []byte    `gorm:"not null"`
	Status        string    `gorm:"type:text;not null;index:idx_outbox_pending"`
	AttemptCount  int       `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (outboxRow) TableName() string { return "outbox_messages" }

func auctionFromRow(r auctionRow) domain.Auction {
	return domain.Auction{
		ID:             r.ID,
		RelatedCompany: r.RelatedCompany,
		AuctionStart:   r.AuctionStart.UTC(),
		AuctionEnd:     r.AuctionEnd.UTC(),
		BranchCategory: r.BranchCategory,
	}
}

func lotToRow(l domain.Lot) lotRow {
	return lotRow{
		AuctionID:      l.AuctionID,
		LotNr:          l.LotNr,
		NumberOfItems:  l.NumberOfItems,
		EstimatedValue: l.EstimatedValue.String(),
		ReserveBid:     l.ReserveBid.String(),
		StartingBid:    l.StartingBid.String(),
		CurrentBid:     l.CurrentBid.String(),
		BuyerAccountID: l.BuyerAccountID,
		Sold:           l.Sold,
		CountryCode:    l.CountryCode,
		VAT:            l.VAT,
		Suffix:         l.Suffix,
		SaleDate:       l.SaleDate.UTC(),
		MainCategory:   l.MainCategory,
	}
}

func lotFromRow(r lotRow) (domain.Lot, error) {
	amounts, err := parseAmounts(r.EstimatedValue, r.ReserveBid, r.StartingBid, r.CurrentBid)
	if err != nil {
		return domain.Lot{}, fmt.Errorf("lot %d/%d: %w", r.AuctionID, r.LotNr, err)
	}
	return domain.Lot{
		AuctionID:      r.AuctionID,
		LotNr:          r.LotNr,
		NumberOfItems:  r.NumberOfItems,
		EstimatedValue: amounts[0],
		ReserveBid:     amounts[1],
		StartingBid:    amounts[2],
		CurrentBid:     amounts[3],
		BuyerAccountID: r.BuyerAccountID,
		Sold:           r.Sold,
		CountryCode:    r.CountryCode,
		VAT:            r.VAT,
		Suffix:         r.Suffix,
		SaleDate:       r.SaleDate.UTC(),
		MainCategory:   r.MainCategory,
	}, nil
}

func bidToRow(b domain.Bid) bidRow {
	return bidRow{
		AuctionID:       b.AuctionID,
		LotNr:           b.LotNr,
		BidNr:           b.BidNr,
		AccountID:       b.AccountID,
		IsCompany:       b.IsCompany,
		IsCombination:   b.IsCombination,
		BidPrice:        b.BidPrice.String(),
		BiddingDateTime: b.BiddingDateTime.UTC(),
		ClosingDateTime: b.ClosingDateTime.UTC(),
	}
}

func bidFromRow(r bidRow) (domain.Bid, error) {
	price, err := decimal.NewFromString(r.BidPrice)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("bid %d/%d/%d: parse price: %w", r.AuctionID, r.LotNr, r.BidNr, err)
	}
	return domain.Bid{
		AuctionID:       r.AuctionID,
		LotNr:           r.LotNr,
		BidNr:           r.BidNr,
		AccountID:       r.AccountID,
		IsCompany:       r.IsCompany,
		IsCombination:   r.IsCombination,
		BidPrice:        price,
		BiddingDateTime: r.BiddingDateTime.UTC(),
		ClosingDateTime: r.ClosingDateTime.UTC(),
	}, nil
}

func parseAmounts(values ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", v, err)
		}
		out[i] = d
	}
	return out, nil
}
