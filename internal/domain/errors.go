package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCompanyRequired: не указана компания, проводящая аукцион.
	ErrCompanyRequired = errors.New("relatedCompany is required")
	// ErrAuctionWindowInvalid: конец аукциона не позже его начала.
	ErrAuctionWindowInvalid = errors.New("auctionEnd must be after auctionStart")
	// ErrNumberOfItemsInvalid: в лоте должен быть хотя бы один предмет.
	ErrNumberOfItemsInvalid = errors.New("numberOfItems must be greater than zero")
	// ErrMoneyNegative: денежная сумма отрицательная.
	ErrMoneyNegative = errors.New("monetary amount must be non-negative")
	// ErrAccountRequired: у ставки нет идентификатора аккаунта.
	ErrAccountRequired = errors.New("accountID is required")
	// ErrLotNrInvalid: номер лота в ставке меньше единицы.
	ErrLotNrInvalid = errors.New("lotNr must be greater than zero")

	// ErrAuctionOverlap: у компании уже есть аукцион, пересекающийся по времени.
	ErrAuctionOverlap = errors.New("auction overlaps an existing auction of the company")
	// ErrAuctionNotFound: аукцион с указанным идентификатором отсутствует.
	ErrAuctionNotFound = errors.New("auction not found")
	// ErrLotNotFound: лот (auctionID, lotNr) отсутствует.
	ErrLotNotFound = errors.New("lot not found")
	// ErrConstraintViolation: нарушение уникальности/внешнего ключа или конфликт сериализации в хранилище.
	// Для выдачи номеров это восстанавливаемая ситуация: операцию повторяют с чтения.
	ErrConstraintViolation = errors.New("ledger constraint violation")
	// ErrSequenceContention: повторы выдачи номера исчерпаны, ошибка временная.
	ErrSequenceContention = errors.New("sequence assignment contention, retry later")
	// ErrNoViableBid: ни одна стартовая ставка из сетки не прогнозируется как продажа.
	ErrNoViableBid = errors.New("no candidate starting bid is predicted to sell")

	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// OverlapError описывает конкретный конфликт интервалов аукционов компании.
type OverlapError struct {
	Company              string
	ConflictingAuctionID int64
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("%s: company %q, conflicting auction %d", ErrAuctionOverlap, e.Company, e.ConflictingAuctionID)
}

// Unwrap позволяет сравнивать через errors.Is(err, ErrAuctionOverlap).
func (e *OverlapError) Unwrap() error {
	return ErrAuctionOverlap
}

// IsConstraintViolation проверяет, можно ли повторить операцию с выдачей номера.
func IsConstraintViolation(err error) bool {
	return errors.Is(err, ErrConstraintViolation)
}

// IsNotFound объединяет отсутствие аукциона и лота.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAuctionNotFound) || errors.Is(err, ErrLotNotFound)
}

// IsValidation сообщает, что ошибка относится к некорректным входным данным.
func IsValidation(err error) bool {
	switch {
	case errors.Is(err, ErrCompanyRequired),
		errors.Is(err, ErrAuctionWindowInvalid),
		errors.Is(err, ErrNumberOfItemsInvalid),
		errors.Is(err, ErrMoneyNegative),
		errors.Is(err, ErrAccountRequired),
		errors.Is(err, ErrLotNrInvalid):
		return true
	default:
		return false
	}
}
