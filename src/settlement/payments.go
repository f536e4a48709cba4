package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"rms/src/config"
	"rms/src/db"
	"rms/src/lib"
	"rms/src/models"
	"rms/src/types"
	"time"

	"gorm.io/gorm"
)

// Amount sign convention: BOOKING_PAYMENT entries are positive (money into
// the platform), everything owed outward (fees, commission, host credit,
// refunds) is negative. Once all entries for a booking are COMPLETED they sum
// to zero.

func initiateCharge(ctx context.Context, booking *models.Booking, entry *models.Transaction) error {
	cctx, cancel := context.WithTimeout(ctx, config.GatewayTimeout())
	defer cancel()

	source := ""
	if booking.Metadata != nil {
		if s, ok := booking.Metadata["payment_source"].(string); ok {
			source = s
		}
	}
	ref, err := lib.Charge(cctx, types.NewMoney(entry.Amount, entry.Currency), source, map[string]string{
		"bookingId":     fmt.Sprint(booking.ID),
		"transactionId": entry.ID.String(),
	})
	if err != nil {
		return handleGatewayError(entry, err, "charge")
	}

	d := db.GetDb()
	return d.Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Model(&models.Transaction{}).
			Where("id = ?", entry.ID).
			Updates(&models.Transaction{
				Status:     types.TRANSACTION_PROCESSING,
				GatewayRef: &ref,
			}).
			Error; err != nil {
			return err
		}
		return tx.
			Model(&models.Booking{}).
			Where("id = ?", booking.ID).
			Update("gateway_ref", ref).
			Error
	})
}

func initiateRefund(ctx context.Context, booking *models.Booking, entry *models.Transaction) error {
	if booking.GatewayRef == nil {
		return failEntryNow(entry, "no gateway reference for refund")
	}
	cctx, cancel := context.WithTimeout(ctx, config.GatewayTimeout())
	defer cancel()

	ref, err := lib.RefundCharge(cctx, *booking.GatewayRef, types.NewMoney(entry.Amount.Abs(), entry.Currency), map[string]string{
		"bookingId":     fmt.Sprint(booking.ID),
		"transactionId": entry.ID.String(),
	})
	if err != nil {
		return handleGatewayError(entry, err, "refund")
	}

	d := db.GetDb()
	return d.
		Model(&models.Transaction{}).
		Where("id = ?", entry.ID).
		Updates(&models.Transaction{
			Status:     types.TRANSACTION_PROCESSING,
			GatewayRef: &ref,
		}).
		Error
}

// handleGatewayError maps gateway failures onto the engine's taxonomy. A
// rejection terminates the entry; a timeout leaves it for reconciliation.
func handleGatewayError(entry *models.Transaction, err error, op string) error {
	if errors.Is(err, lib.ErrRejected) {
		if ferr := failEntryNow(entry, err.Error()); ferr != nil {
			log.Printf("Error failing transaction %s: %s\n", entry.ID.String(), ferr.Error())
		}
		return fmt.Errorf("%w: %s: %v", ErrGatewayRejected, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrGatewayTimeout, op)
	}
	return err
}

func failEntryNow(entry *models.Transaction, reason string) error {
	d := db.GetDb()
	return d.Transaction(func(tx *gorm.DB) error {
		return failEntry(tx, entry.ID, reason)
	})
}

// ConfirmPayment finalizes a charge the gateway reported as succeeded: the
// payment entry completes and the commission split is posted as PLATFORM_FEE,
// COMMISSION and a HOST_PAYOUT credit. Safe to call more than once; an
// already-completed entry is left untouched.
func ConfirmPayment(ctx context.Context, gatewayRef string) error {
	rc := LoadRateConfig()
	d := db.GetDb()
	var bookingID uint
	err := d.Transaction(func(tx *gorm.DB) error {
		var entry models.Transaction
		if err := tx.
			Model(&models.Transaction{}).
			Where(&models.Transaction{Type: types.TXN_BOOKING_PAYMENT}).
			Where("gateway_ref = ?", gatewayRef).
			First(&entry).
			Error; err != nil {
			return err
		}
		completed, err := completeEntry(tx, &entry)
		if err != nil {
			return err
		}
		if !completed {
			log.Printf("Payment %s already finalized, skipping\n", gatewayRef)
			return nil
		}
		bookingID = entry.BookingID

		split, err := Split(types.NewMoney(entry.Amount, entry.Currency), rc)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		entries := []*models.Transaction{
			{
				BookingID:   entry.BookingID,
				Type:        types.TXN_PLATFORM_FEE,
				Status:      types.TRANSACTION_COMPLETED,
				Amount:      split.PlatformFee.Amount.Neg(),
				Currency:    entry.Currency,
				ProcessedAt: &now,
			},
			{
				BookingID:   entry.BookingID,
				Type:        types.TXN_COMMISSION,
				Status:      types.TRANSACTION_COMPLETED,
				Amount:      split.AgentCommission.Amount.Neg(),
				Currency:    entry.Currency,
				ProcessedAt: &now,
			},
			{
				BookingID: entry.BookingID,
				HostID:    entry.HostID,
				Type:      types.TXN_HOST_PAYOUT,
				// The host credit settles when the booking completes.
				Status:   types.TRANSACTION_PENDING,
				Amount:   split.HostNet.Amount.Neg(),
				Currency: entry.Currency,
			},
		}
		for _, e := range entries {
			if err := appendEntry(tx, e); err != nil {
				return err
			}
		}

		trail := models.TrailLog{
			BookingID: &entry.BookingID,
			Action:    "payment.completed",
			Actor:     "gateway",
		}
		return tx.Create(&trail).Error
	})
	if err != nil {
		return err
	}

	if err := lib.PublishTransactionUpdate("payment.completed", types.JSONB{
		"booking_id":  bookingID,
		"gateway_ref": gatewayRef,
	}); err != nil {
		log.Printf("Error publishing payment event: %s\n", err.Error())
	}
	return nil
}

// FailPayment terminates a rejected charge. No silent retry: the entry goes
// FAILED and stays there until an operator acts.
func FailPayment(ctx context.Context, gatewayRef, reason string) error {
	d := db.GetDb()
	return d.Transaction(func(tx *gorm.DB) error {
		var entry models.Transaction
		if err := tx.
			Model(&models.Transaction{}).
			Where(&models.Transaction{Type: types.TXN_BOOKING_PAYMENT}).
			Where("gateway_ref = ?", gatewayRef).
			First(&entry).
			Error; err != nil {
			return err
		}
		if err := failEntry(tx, entry.ID, reason); err != nil {
			return err
		}
		trail := models.TrailLog{
			BookingID:     &entry.BookingID,
			Action:        "payment.failed",
			Actor:         "gateway",
			Justification: reason,
		}
		return tx.Create(&trail).Error
	})
}

// ConfirmRefund completes a refund entry once the gateway confirms it.
func ConfirmRefund(ctx context.Context, gatewayRef string) error {
	d := db.GetDb()
	return d.Transaction(func(tx *gorm.DB) error {
		var entry models.Transaction
		if err := tx.
			Model(&models.Transaction{}).
			Where(&models.Transaction{Type: types.TXN_REFUND}).
			Where("gateway_ref = ?", gatewayRef).
			First(&entry).
			Error; err != nil {
			return err
		}
		if _, err := completeEntry(tx, &entry); err != nil {
			return err
		}
		trail := models.TrailLog{
			BookingID: &entry.BookingID,
			Action:    "refund.completed",
			Actor:     "gateway",
		}
		return tx.Create(&trail).Error
	})
}
