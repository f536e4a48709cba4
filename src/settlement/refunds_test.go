package settlement

import (
	"rms/src/types"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func money(s string) types.Money {
	m, _ := types.MoneyFromString(s, "USD")
	return m
}

func TestPolicyRefundableOutsideWindow(t *testing.T) {
	now := time.Now().UTC()
	checkIn := now.Add(48 * time.Hour)

	for _, policy := range []types.CancellationPolicy{
		types.POLICY_FULL,
		types.POLICY_FLEXIBLE,
		types.POLICY_STRICT,
	} {
		refundable := policyRefundable(money("500.00"), policy, checkIn, now)
		assert.Equal(t, "500.00 USD", refundable.String(), string(policy))
	}
}

func TestPolicyRefundableStrictInsideWindow(t *testing.T) {
	now := time.Now().UTC()
	// 2 hours before check-in, inside the 24h strict window
	checkIn := now.Add(2 * time.Hour)

	refundable := policyRefundable(money("500.00"), types.POLICY_STRICT, checkIn, now)
	assert.True(t, refundable.IsZero())
}

func TestPolicyRefundableFlexibleInsideWindow(t *testing.T) {
	now := time.Now().UTC()
	checkIn := now.Add(2 * time.Hour)

	refundable := policyRefundable(money("500.00"), types.POLICY_FLEXIBLE, checkIn, now)
	assert.Equal(t, "500.00 USD", refundable.String())
}

func TestPolicyRefundableKeepsProcessingFee(t *testing.T) {
	t.Setenv("NON_REFUNDABLE_FEE_PCT", "5")
	now := time.Now().UTC()
	checkIn := now.Add(48 * time.Hour)

	refundable := policyRefundable(money("500.00"), types.POLICY_FULL, checkIn, now)
	assert.Equal(t, "475.00 USD", refundable.String())
}

func TestClampRefundDefaultsToPolicyMax(t *testing.T) {
	paid := decimal.RequireFromString("500.00")
	refund, err := clampRefund(nil, money("500.00"), paid, decimal.Zero)
	assert.NoError(t, err)
	assert.Equal(t, "500.00 USD", refund.String())
}

func TestClampRefundSubtractsPriorRefunds(t *testing.T) {
	paid := decimal.RequireFromString("500.00")
	refunded := decimal.RequireFromString("200.00")

	refund, err := clampRefund(nil, money("500.00"), paid, refunded)
	assert.NoError(t, err)
	assert.Equal(t, "300.00 USD", refund.String())
}

func TestClampRefundRejectsOverRefund(t *testing.T) {
	paid := decimal.RequireFromString("500.00")
	refunded := decimal.RequireFromString("200.00")
	requested := decimal.RequireFromString("301.00")

	_, err := clampRefund(&requested, money("500.00"), paid, refunded)
	assert.ErrorIs(t, err, ErrRefundExceedsPaid)
}

func TestClampRefundRejectsNegativeRequest(t *testing.T) {
	paid := decimal.RequireFromString("500.00")
	requested := decimal.RequireFromString("-1.00")

	_, err := clampRefund(&requested, money("500.00"), paid, decimal.Zero)
	assert.ErrorIs(t, err, ErrRefundExceedsPaid)
}

func TestClampRefundHonorsPolicyCeiling(t *testing.T) {
	paid := decimal.RequireFromString("500.00")
	requested := decimal.RequireFromString("400.00")

	// the policy only allows 250 back, the request does not override it
	refund, err := clampRefund(&requested, money("250.00"), paid, decimal.Zero)
	assert.NoError(t, err)
	assert.Equal(t, "250.00 USD", refund.String())
}

func TestClampRefundNothingPaid(t *testing.T) {
	refund, err := clampRefund(nil, money("500.00"), decimal.Zero, decimal.Zero)
	assert.NoError(t, err)
	assert.True(t, refund.IsZero())
}
