package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// minorUnitDigits maps ISO 4217 currency codes to their minor-unit exponent.
// Anything not listed uses two digits.
var minorUnitDigits = map[string]int32{
	"BHD": 3,
	"JOD": 3,
	"KWD": 3,
	"OMR": 3,
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
}

func CurrencyExponent(currency string) int32 {
	if d, ok := minorUnitDigits[currency]; ok {
		return d
	}
	return 2
}

// Money is a fixed-point amount tagged with its currency. Amounts are never
// represented as floats anywhere in the engine.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

func MoneyFromString(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Money{Amount: d, Currency: currency}, nil
}

func ZeroMoney(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

// Truncate drops everything beyond the currency's minor unit without rounding
// up. Remainders are reassigned by the caller so amounts still sum exactly.
func (m Money) Truncate() Money {
	return Money{Amount: m.Amount.Truncate(CurrencyExponent(m.Currency)), Currency: m.Currency}
}

func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, o.Currency)
	}
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}, nil
}

func (m Money) Sub(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, o.Currency)
	}
	return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.Currency}, nil
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) IsNegative() bool {
	return m.Amount.IsNegative()
}

func (m Money) LessThan(o Money) bool {
	return m.Amount.LessThan(o.Amount)
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(CurrencyExponent(m.Currency)), m.Currency)
}
