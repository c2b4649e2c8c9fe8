package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

// Имена полей совпадают с исходным REST API аукционной базы.

type createAuctionRequest struct {
	RelatedCompany string    `json:"relatedCompany" binding:"required"`
	AuctionStart   time.Time `json:"auctionStart" binding:"required"`
	AuctionEnd     time.Time `json:"auctionEnd" binding:"required"`
	BranchCategory string    `json:"branchCategory"`
}

func (r createAuctionRequest) draft() domain.AuctionDraft {
	return domain.AuctionDraft{
		RelatedCompany: r.RelatedCompany,
		AuctionStart:   r.AuctionStart,
		AuctionEnd:     r.AuctionEnd,
		BranchCategory: r.BranchCategory,
	}
}

type createLotRequest struct {
	AuctionID      int64           `json:"auctionID" binding:"required,gt=0"`
	NumberOfItems  int             `json:"numberOfItems" binding:"required,gt=0"`
	EstimatedValue decimal.Decimal `json:"estimatedValue"`
	ReserveBid     decimal.Decimal `json:"reserveBid"`
	MainCategory   string          `json:"mainCategory"`
}

func (r createLotRequest) draft() domain.LotDraft {
	return domain.LotDraft{
		AuctionID:      r.AuctionID,
		NumberOfItems:  r.NumberOfItems,
		EstimatedValue: r.EstimatedValue,
		ReserveBid:     r.ReserveBid,
		MainCategory:   r.MainCategory,
	}
}

type createBidRequest struct {
	AuctionID     int64           `json:"auctionID" binding:"required,gt=0"`
	LotNr         int             `json:"lotNr" binding:"required,gt=0"`
	AccountID     int64           `json:"accountID" binding:"required"`
	IsCompany     bool            `json:"isCompany"`
	IsCombination bool            `json:"isCombination"`
	BidPrice      decimal.Decimal `json:"bidPrice"`
}

func (r createBidRequest) draft() domain.BidDraft {
	return domain.BidDraft{
		AuctionID:     r.AuctionID,
		LotNr:         r.LotNr,
		AccountID:     r.AccountID,
		IsCompany:     r.IsCompany,
		IsCombination: r.IsCombination,
		BidPrice:      r.BidPrice,
	}
}

type pageQuery struct {
	Skip  int `form:"skip" binding:"min=0"`
	Limit int `form:"limit" binding:"omitempty,min=1"`
}

type lotsQuery struct {
	pageQuery
	AuctionID int64 `form:"auctionID" binding:"required,gt=0"`
}

type bidsQuery struct {
	pageQuery
	AuctionID int64 `form:"auctionID" binding:"required,gt=0"`
	LotNr     int   `form:"lotNr" binding:"required,gt=0"`
}

// Денежные значения в query приходят строками и разбираются в decimal вручную.
type recommendationQuery struct {
	AuctionID      int64  `form:"auctionID" binding:"required,gt=0"`
	NumberOfItems  int    `form:"numberOfItems" binding:"required,gt=0"`
	EstimatedValue string `form:"estimatedValue" binding:"required,numeric"`
	ReserveBid     string `form:"reserveBid" binding:"required,numeric"`
	MainCategory   string `form:"mainCategory"`
}

func (q recommendationQuery) draft() (domain.LotDraft, error) {
	estimated, err := decimal.NewFromString(q.EstimatedValue)
	if err != nil {
		return domain.LotDraft{}, err
	}
	reserve, err := decimal.NewFromString(q.ReserveBid)
	if err != nil {
		return domain.LotDraft{}, err
	}
	return domain.LotDraft{
		AuctionID:      q.AuctionID,
		NumberOfItems:  q.NumberOfItems,
		EstimatedValue: estimated,
		ReserveBid:     reserve,
		MainCategory:   q.MainCategory,
	}, nil
}

type auctionResponse struct {
	ID             int64     `json:"id"`
	RelatedCompany string    `json:"relatedCompany"`
	AuctionStart   time.Time `json:"auctionStart"`
	AuctionEnd     time.Time `json:"auctionEnd"`
	BranchCategory string    `json:"branchCategory"`
}

func newAuctionResponse(a domain.Auction) auctionResponse {
	return auctionResponse{
		ID:             a.ID,
		RelatedCompany: a.RelatedCompany,
		AuctionStart:   a.AuctionStart.UTC(),
		AuctionEnd:     a.AuctionEnd.UTC(),
		BranchCategory: a.BranchCategory,
	}
}

type lotResponse struct {
	AuctionID      int64     `json:"auctionID"`
	LotNr          int       `json:"lotNr"`
	NumberOfItems  int       `json:"numberOfItems"`
	EstimatedValue string    `json:"estimatedValue"`
	ReserveBid     string    `json:"reserveBid"`
	StartingBid    string    `json:"startingBid"`
	CurrentBid     string    `json:"currentBid"`
	BuyerAccountID int64     `json:"buyerAccountID"`
	Sold           bool      `json:"sold"`
	CountryCode    string    `json:"countryCode"`
	VAT            int       `json:"VAT"`
	Suffix         string    `json:"suffix"`
	SaleDate       time.Time `json:"saleDate"`
	MainCategory   string    `json:"mainCategory"`
}

func newLotResponse(l domain.Lot) lotResponse {
	return lotResponse{
		AuctionID:      l.AuctionID,
		LotNr:          l.LotNr,
		NumberOfItems:  l.NumberOfItems,
		EstimatedValue: l.EstimatedValue.StringFixed(2),
		ReserveBid:     l.ReserveBid.StringFixed(2),
		StartingBid:    l.StartingBid.StringFixed(2),
		CurrentBid:     l.CurrentBid.StringFixed(2),
		BuyerAccountID: l.BuyerAccountID,
		Sold:           l.Sold,
		CountryCode:    l.CountryCode,
		VAT:            l.VAT,
		Suffix:         l.Suffix,
		SaleDate:       l.SaleDate.UTC(),
		MainCategory:   l.MainCategory,
	}
}

type bidResponse struct {
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

func newBidResponse(b domain.Bid) bidResponse {
	return bidResponse{
		AuctionID:       b.AuctionID,
		LotNr:           b.LotNr,
		BidNr:           b.BidNr,
		AccountID:       b.AccountID,
		IsCompany:       b.IsCompany,
		IsCombination:   b.IsCombination,
		BidPrice:        b.BidPrice.StringFixed(2),
		BiddingDateTime: b.BiddingDateTime.UTC(),
		ClosingDateTime: b.ClosingDateTime.UTC(),
	}
}

type recommendationResponse struct {
	AuctionID   int64  `json:"auctionID"`
	StartingBid string `json:"startingBid"`
}
