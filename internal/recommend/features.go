package recommend

import (
	"time"

	"github.com/shopspring/decimal"
)

// Порядок числовых колонок совпадает с порядком, на котором обучен scaler.
const (
	colNumberOfItems = iota
	colEstimatedValue
	colStartingBid
	colReserveBid
	colAuctionDuration

	NumericFeatureCount
)

// NumericFeatureNames: имена числовых колонок в порядке признаков.
var NumericFeatureNames = [NumericFeatureCount]string{
	"numberOfItems",
	"estimatedValue",
	"startingBid",
	"reserveBid",
	"auctionDuration",
}

// LotFeatures: атрибуты лота, неизменные для всех кандидатов сетки.
type LotFeatures struct {
	NumberOfItems   int
	EstimatedValue  decimal.Decimal
	ReserveBid      decimal.Decimal
	AuctionDuration int
	Category        string
}

// AuctionDurationHours возвращает floor((end - start) / 1h).
func AuctionDurationHours(start, end time.Time) int {
	d := end.Sub(start)
	hours := int(d / time.Hour)
	if d < 0 && d%time.Hour != 0 {
		hours--
	}
	return hours
}

// OneHot кодирует категорию относительно словаря. Неизвестная категория даёт нулевую строку.
func OneHot(category string, vocabulary []string) []float64 {
	row := make([]float64, len(vocabulary))
	for i, known := range vocabulary {
		if known == category {
			row[i] = 1
		}
	}
	return row
}

// numericRow собирает числовые признаки для одного кандидата.
func numericRow(f LotFeatures, candidate decimal.Decimal) []float64 {
	row := make([]float64, NumericFeatureCount)
	row[colNumberOfItems] = float64(f.NumberOfItems)
	row[colEstimatedValue] = f.EstimatedValue.InexactFloat64()
	row[colStartingBid] = candidate.InexactFloat64()
	row[colReserveBid] = f.ReserveBid.InexactFloat64()
	row[colAuctionDuration] = float64(f.AuctionDuration)
	return row
}
