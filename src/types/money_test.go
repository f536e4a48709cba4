package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCurrencyExponent(t *testing.T) {
	assert.Equal(t, int32(2), CurrencyExponent("USD"))
	assert.Equal(t, int32(2), CurrencyExponent("AED"))
	assert.Equal(t, int32(0), CurrencyExponent("JPY"))
	assert.Equal(t, int32(3), CurrencyExponent("BHD"))
	assert.Equal(t, int32(2), CurrencyExponent("XYZ"))
}

func TestMoneyTruncate(t *testing.T) {
	m, err := MoneyFromString("10.019", "USD")
	assert.NoError(t, err)
	assert.Equal(t, "10.01 USD", m.Truncate().String())

	m, err = MoneyFromString("100.9", "JPY")
	assert.NoError(t, err)
	assert.Equal(t, "100 JPY", m.Truncate().String())

	m, err = MoneyFromString("1.2345", "KWD")
	assert.NoError(t, err)
	assert.Equal(t, "1.234 KWD", m.Truncate().String())
}

func TestMoneyArithmetic(t *testing.T) {
	a, _ := MoneyFromString("10.50", "USD")
	b, _ := MoneyFromString("0.50", "USD")

	sum, err := a.Add(b)
	assert.NoError(t, err)
	assert.Equal(t, "11.00 USD", sum.String())

	diff, err := a.Sub(b)
	assert.NoError(t, err)
	assert.Equal(t, "10.00 USD", diff.String())
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	a, _ := MoneyFromString("10.00", "USD")
	b, _ := MoneyFromString("10.00", "EUR")

	_, err := a.Add(b)
	assert.Error(t, err)
	_, err = a.Sub(b)
	assert.Error(t, err)
}

func TestMoneyFromStringRejectsGarbage(t *testing.T) {
	_, err := MoneyFromString("ten", "USD")
	assert.Error(t, err)
}

func TestMoneyPredicates(t *testing.T) {
	zero := ZeroMoney("USD")
	assert.True(t, zero.IsZero())
	assert.False(t, zero.IsNegative())

	neg := NewMoney(decimal.NewFromInt(-5), "USD")
	assert.True(t, neg.IsNegative())
	assert.True(t, neg.LessThan(zero))
}
