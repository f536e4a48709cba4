package settlement

import (
	"context"
	"fmt"
	"rms/src/config"
	"rms/src/db"
	"rms/src/models"
	"rms/src/types"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type refundPolicy struct {
	window    time.Duration
	insidePct decimal.Decimal
}

// policyFor reads the cancellation policy parameters. Windows and fractions
// are configuration, not constants; the defaults match the marketplace's
// published policies.
func policyFor(p types.CancellationPolicy) refundPolicy {
	switch p {
	case types.POLICY_FULL:
		return refundPolicy{
			window:    config.PolicyFullWindow(),
			insidePct: decimal.NewFromFloat(config.PolicyFullRefundPct()),
		}
	case types.POLICY_STRICT:
		return refundPolicy{
			window:    config.PolicyStrictWindow(),
			insidePct: decimal.NewFromFloat(config.PolicyStrictRefundPct()),
		}
	default:
		return refundPolicy{
			window:    config.PolicyFlexibleWindow(),
			insidePct: decimal.NewFromFloat(config.PolicyFlexibleRefundPct()),
		}
	}
}

// policyRefundable computes the maximum the policy allows to flow back to the
// guest at a given cancellation time, before looking at what was actually
// paid. Outside the window the booking refunds in full; inside it the
// policy's fraction applies. The non-refundable processing fee is kept either
// way.
func policyRefundable(total types.Money, policy types.CancellationPolicy, checkIn, now time.Time) types.Money {
	p := policyFor(policy)
	refundable := total
	if now.After(checkIn.Add(-p.window)) {
		refundable = types.NewMoney(total.Amount.Mul(p.insidePct).Div(hundred), total.Currency)
	}
	feePct := decimal.NewFromFloat(config.NonRefundableFeePct())
	if feePct.IsPositive() && refundable.Amount.IsPositive() {
		fee := types.NewMoney(total.Amount.Mul(feePct).Div(hundred), total.Currency).Truncate()
		refundable = types.NewMoney(refundable.Amount.Sub(fee.Amount), total.Currency)
	}
	if refundable.Amount.IsNegative() {
		return types.ZeroMoney(total.Currency)
	}
	return refundable.Truncate()
}

// clampRefund bounds a refund: never more than completed payments minus what
// was already refunded, and never more than the policy allows.
func clampRefund(requested *decimal.Decimal, policyMax types.Money, paid, refunded decimal.Decimal) (types.Money, error) {
	remaining := paid.Sub(refunded)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	if requested != nil {
		if requested.IsNegative() {
			return types.Money{}, fmt.Errorf("%w: negative refund requested", ErrRefundExceedsPaid)
		}
		if requested.GreaterThan(remaining) {
			return types.Money{}, fmt.Errorf("%w: requested %s, refundable %s", ErrRefundExceedsPaid, requested, remaining)
		}
		amount := decimal.Min(*requested, policyMax.Amount)
		return types.NewMoney(amount, policyMax.Currency).Truncate(), nil
	}
	amount := decimal.Min(policyMax.Amount, remaining)
	return types.NewMoney(amount, policyMax.Currency).Truncate(), nil
}

// refundForCancellation reads the booking's payment history inside the
// caller's transaction (a consistent snapshot) and returns the refund due.
func refundForCancellation(tx *gorm.DB, booking *models.Booking, requested *decimal.Decimal, now time.Time) (types.Money, error) {
	paid, err := completedPaymentTotal(tx, booking.ID)
	if err != nil {
		return types.Money{}, err
	}
	refunded, err := refundedTotal(tx, booking.ID)
	if err != nil {
		return types.Money{}, err
	}
	policyMax := policyRefundable(types.NewMoney(booking.TotalAmount, booking.Currency), booking.Policy, booking.CheckIn, now)
	return clampRefund(requested, policyMax, paid, refunded)
}

// ComputeRefund previews the refund a cancellation would produce right now.
// Read-only; the refund is applied by the cancellation or dispute path.
func ComputeRefund(ctx context.Context, bookingID uint, requested *decimal.Decimal) (types.Money, error) {
	d := db.GetDb()
	var amount types.Money
	err := d.Transaction(func(tx *gorm.DB) error {
		var booking models.Booking
		if err := tx.
			Model(&models.Booking{}).
			Where("id = ?", bookingID).
			First(&booking).
			Error; err != nil {
			return err
		}
		m, err := refundForCancellation(tx, &booking, requested, time.Now().UTC())
		if err != nil {
			return err
		}
		amount = m
		return nil
	})
	return amount, err
}
