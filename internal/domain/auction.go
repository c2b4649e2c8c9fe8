package domain

import (
	"strings"
	"time"
)

// Auction: аукцион компании. Создаётся один раз и больше не изменяется.
type Auction struct {
	ID             int64
	RelatedCompany string
	AuctionStart   time.Time
	AuctionEnd     time.Time
	BranchCategory string
}

// AuctionDraft: входные данные для создания аукциона, идентификатор назначает хранилище.
type AuctionDraft struct {
	RelatedCompany string
	AuctionStart   time.Time
	AuctionEnd     time.Time
	BranchCategory string
}

// Validate проверяет инварианты черновика аукциона.
func (d AuctionDraft) Validate() error {
	if strings.TrimSpace(d.RelatedCompany) == "" {
		return ErrCompanyRequired
	}
	if !d.AuctionEnd.After(d.AuctionStart) {
		return ErrAuctionWindowInvalid
	}
	return nil
}

// Duration возвращает длительность аукциона.
func (a Auction) Duration() time.Duration {
	return a.AuctionEnd.Sub(a.AuctionStart)
}

// Overlaps проверяет пересечение с интервалом [start, end]. Границы включены.
func (a Auction) Overlaps(start, end time.Time) bool {
	return IntervalsOverlap(a.AuctionStart, a.AuctionEnd, start, end)
}

// IntervalsOverlap: полный тест пересечения замкнутых интервалов, включая вложенность.
func IntervalsOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !aEnd.Before(bStart)
}
