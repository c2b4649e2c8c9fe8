package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

// Типы событий леджера в outbox.
const (
	EventAuctionCreated = "auction.created"
	EventLotCreated     = "lot.created"
	EventBidPlaced      = "bid.placed"

	AggregateAuction = "auction"
	AggregateLot     = "lot"
	AggregateBid     = "bid"
)

// AuctionCreatedPayload: тело события auction.created.
type AuctionCreatedPayload struct {
	ID             int64     `json:"id"`
	RelatedCompany string    `json:"relatedCompany"`
	AuctionStart   time.Time `json:"auctionStart"`
	AuctionEnd     time.Time `json:"auctionEnd"`
	BranchCategory string    `json:"branchCategory"`
}

// LotCreatedPayload: тело события lot.created.
type LotCreatedPayload struct {
	AuctionID      int64  `json:"auctionID"`
	LotNr          int    `json:"lotNr"`
	NumberOfItems  int    `json:"numberOfItems"`
	EstimatedValue string `json:"estimatedValue"`
	ReserveBid     string `json:"reserveBid"`
	StartingBid    string `json:"startingBid"`
	MainCategory   string `json:"mainCategory"`
}

// BidPlacedPayload: тело события bid.placed.
type BidPlacedPayload struct {
	AuctionID       int64     `json:"auctionID"`
	LotNr           int       `json:"lotNr"`
	BidNr           int       `json:"bidNr"`
	AccountID       int64     `json:"accountID"`
	IsCompany       bool      `json:"isCompany"`
	IsCombination   bool      `json:"isCombination"`
	BidPrice        string    `json:"bidPrice"`
	BiddingDateTime time.Time `json:"biddingDateTime"`
	ClosingDateTime time.Time `json:"closingDateTime"`
}

func auctionCreatedMessage(a domain.Auction) (domain.OutboxMessage, error) {
	return newMessage(AggregateAuction, fmt.Sprintf("auction:%d", a.ID), EventAuctionCreated, AuctionCreatedPayload{
		ID:             a.ID,
		RelatedCompany: a.RelatedCompany,
		AuctionStart:   a.AuctionStart,
		AuctionEnd:     a.AuctionEnd,
		BranchCategory: a.BranchCategory,
	})
}

func lotCreatedMessage(l domain.Lot) (domain.OutboxMessage, error) {
	return newMessage(AggregateLot, fmt.Sprintf("lot:%d:%d", l.AuctionID, l.LotNr), EventLotCreated, LotCreatedPayload{
		AuctionID:      l.AuctionID,
		LotNr:          l.LotNr,
		NumberOfItems:  l.NumberOfItems,
		EstimatedValue: l.EstimatedValue.StringFixed(domain.MonetaryPrecision),
		ReserveBid:     l.ReserveBid.StringFixed(domain.MonetaryPrecision),
		StartingBid:    l.StartingBid.StringFixed(domain.MonetaryPrecision),
		MainCategory:   l.MainCategory,
	})
}

func bidPlacedMessage(b domain.Bid) (domain.OutboxMessage, error) {
	return newMessage(AggregateBid, fmt.Sprintf("bid:%d:%d:%d", b.AuctionID, b.LotNr, b.BidNr), EventBidPlaced, BidPlacedPayload{
		AuctionID:       b.AuctionID,
		LotNr:           b.LotNr,
		BidNr:           b.BidNr,
		AccountID:       b.AccountID,
		IsCompany:       b.IsCompany,
		IsCombination:   b.IsCombination,
		BidPrice:        b.BidPrice.StringFixed(domain.MonetaryPrecision),
		BiddingDateTime: b.BiddingDateTime,
		ClosingDateTime: b.ClosingDateTime,
	})
}

func newMessage(aggregateType, aggregateID, eventType string, payload any) (domain.OutboxMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}
