package domain

import "github.com/shopspring/decimal"

// MonetaryPrecision: количество знаков после запятой для денежных сумм леджера.
const MonetaryPrecision int32 = 2

// Money нормализует сумму до MonetaryPrecision знаков.
func Money(value decimal.Decimal) decimal.Decimal {
	return value.Round(MonetaryPrecision)
}

// MoneyFromFloat переводит float64 из внешнего слоя в денежную сумму.
func MoneyFromFloat(value float64) decimal.Decimal {
	return Money(decimal.NewFromFloat(value))
}

func validateNonNegative(values ...decimal.Decimal) error {
	for _, v := range values {
		if v.IsNegative() {
			return ErrMoneyNegative
		}
	}
	return nil
}
