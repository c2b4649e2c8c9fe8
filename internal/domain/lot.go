package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Значения-заглушки, которыми заполняется лот при создании.
// Продажа лота и его расчёт в леджере не моделируются.
const (
	DefaultLotCountryCode    = "NL"
	DefaultLotVAT            = 21
	DefaultLotSuffix         = "N/A"
	DefaultLotBuyerAccountID = int64(99999)
)

var (
	// DefaultLotSaleDate: «пустая» дата продажи.
	DefaultLotSaleDate = time.Date(1000, time.January, 1, 0, 0, 0, 0, time.UTC)
	// DefaultLotCurrentBid: «пустая» текущая ставка.
	DefaultLotCurrentBid = decimal.NewFromInt(99999)
)

// Lot: лот аукциона с составным ключом (AuctionID, LotNr).
type Lot struct {
	AuctionID      int64
	LotNr          int
	NumberOfItems  int
	EstimatedValue decimal.Decimal
	ReserveBid     decimal.Decimal
	StartingBid    decimal.Decimal
	CurrentBid     decimal.Decimal
	BuyerAccountID int64
	Sold           bool
	CountryCode    string
	VAT            int
	Suffix         string
	SaleDate       time.Time
	MainCategory   string
}

// LotDraft: данные, которые передаёт вызывающая сторона при создании лота.
type LotDraft struct {
	AuctionID      int64
	NumberOfItems  int
	EstimatedValue decimal.Decimal
	ReserveBid     decimal.Decimal
	MainCategory   string
}

// Validate проверяет инварианты черновика лота.
func (d LotDraft) Validate() error {
	if d.NumberOfItems <= 0 {
		return ErrNumberOfItemsInvalid
	}
	return validateNonNegative(d.EstimatedValue, d.ReserveBid)
}

// NewLot собирает лот из черновика, назначенного номера и рассчитанной стартовой ставки.
func NewLot(draft LotDraft, lotNr int, startingBid decimal.Decimal) Lot {
	return Lot{
		AuctionID:      draft.AuctionID,
		LotNr:          lotNr,
		NumberOfItems:  draft.NumberOfItems,
		EstimatedValue: Money(draft.EstimatedValue),
		ReserveBid:     Money(draft.ReserveBid),
		StartingBid:    Money(startingBid),
		CurrentBid:     DefaultLotCurrentBid,
		BuyerAccountID: DefaultLotBuyerAccountID,
		Sold:           false,
		CountryCode:    DefaultLotCountryCode,
		VAT:            DefaultLotVAT,
		Suffix:         DefaultLotSuffix,
		SaleDate:       DefaultLotSaleDate,
		MainCategory:   draft.MainCategory,
	}
}
