package settlement

import (
	"context"
	"fmt"
	"log"
	"rms/src/db"
	"rms/src/lib"
	"rms/src/models"
	"rms/src/types"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	ActorResolver  = "resolver"
	ActorEmergency = "emergency"
)

// transitions is the booking state graph. CANCELLED and COMPLETED are
// terminal; DISPUTED resolves back to one of them through the resolver.
var transitions = map[types.BookingStatus][]types.BookingStatus{
	types.BOOKING_PENDING:   {types.BOOKING_CONFIRMED, types.BOOKING_CANCELED},
	types.BOOKING_CONFIRMED: {types.BOOKING_COMPLETED, types.BOOKING_CANCELED, types.BOOKING_DISPUTED},
	types.BOOKING_DISPUTED:  {types.BOOKING_CANCELED, types.BOOKING_COMPLETED},
}

func CanTransition(from, to types.BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves a booking to target and posts the associated ledger
// entries as one atomic unit. Duplicate calls with the same idempotency key
// return the original outcome without re-applying effects.
func Transition(ctx context.Context, bookingID uint, target types.BookingStatus, reason, actor, idemKey string) (types.JSONB, error) {
	outcome, replayed, err := runIdempotent(ctx, idemKey, "transition", func() (types.JSONB, error) {
		return applyTransition(ctx, bookingID, target, reason, actor)
	})
	if replayed {
		log.Printf("[transition] Replayed idempotency key %s for booking %d\n", idemKey, bookingID)
	}
	return outcome, err
}

func applyTransition(ctx context.Context, bookingID uint, target types.BookingStatus, reason, actor string) (types.JSONB, error) {
	d := db.GetDb()
	var booking models.Booking
	var payment *models.Transaction
	var refund *models.Transaction

	err := d.Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", bookingID).
			First(&booking).
			Error; err != nil {
			return err
		}
		from := booking.Status
		if !CanTransition(from, target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, target)
		}
		if from == types.BOOKING_DISPUTED && actor != ActorResolver && actor != ActorEmergency {
			return fmt.Errorf("%w: disputed booking requires resolution", ErrInvalidTransition)
		}

		updates := map[string]any{
			"status":            target,
			"status_changed_at": time.Now().UTC(),
		}

		switch target {
		case types.BOOKING_CONFIRMED:
			entry := models.Transaction{
				BookingID: booking.ID,
				HostID:    booking.HostID,
				Type:      types.TXN_BOOKING_PAYMENT,
				Status:    types.TRANSACTION_PENDING,
				Amount:    booking.TotalAmount,
				Currency:  booking.Currency,
			}
			if err := appendEntry(tx, &entry); err != nil {
				return err
			}
			payment = &entry
		case types.BOOKING_COMPLETED:
			paid, err := completedPaymentTotal(tx, booking.ID)
			if err != nil {
				return err
			}
			if !paid.IsPositive() {
				return fmt.Errorf("%w: no completed payment for booking %d", ErrInvalidTransition, booking.ID)
			}
			if err := settleHostCredit(tx, booking.ID); err != nil {
				return err
			}
		case types.BOOKING_CANCELED:
			amount, err := cancelBooking(tx, &booking, reason, actor)
			if err != nil {
				return err
			}
			refund = amount
			if refund != nil {
				updates["refund_amount"] = refund.Amount.Abs()
			}
		case types.BOOKING_DISPUTED:
			if err := freezeHostCredits(tx, booking.ID, true); err != nil {
				return err
			}
		}

		res := tx.
			Model(&models.Booking{}).
			Where("id = ? AND status = ?", booking.ID, from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: booking %d", ErrConcurrentModification, booking.ID)
		}

		trail := models.TrailLog{
			BookingID:     &booking.ID,
			Action:        "transition",
			Actor:         actor,
			FromStatus:    string(from),
			ToStatus:      string(target),
			Justification: reason,
		}
		return tx.Create(&trail).Error
	})
	if err != nil {
		return nil, err
	}

	// Gateway calls happen after commit; the ledger entry is already durable
	// and reconciliation picks it up if the call never lands.
	if payment != nil {
		if err := initiateCharge(ctx, &booking, payment); err != nil {
			log.Printf("Error initiating charge for booking %d: %s\n", booking.ID, err.Error())
		}
	}
	if refund != nil {
		if err := initiateRefund(ctx, &booking, refund); err != nil {
			log.Printf("Error initiating refund for booking %d: %s\n", booking.ID, err.Error())
		}
	}

	if err := lib.PublishTransactionUpdate("booking.transition", types.JSONB{
		"booking_id": booking.ID,
		"status":     string(target),
		"actor":      actor,
	}); err != nil {
		log.Printf("Error publishing transition event: %s\n", err.Error())
	}

	return types.JSONB{
		"booking_id": booking.ID,
		"status":     string(target),
	}, nil
}

// settleHostCredit marks the booking's HOST_PAYOUT credit as completed and
// therefore eligible for batching.
func settleHostCredit(tx *gorm.DB, bookingID uint) error {
	now := time.Now().UTC()
	return tx.
		Model(&models.Transaction{}).
		Where(&models.Transaction{BookingID: bookingID, Type: types.TXN_HOST_PAYOUT}).
		Where("status IN ?", []types.TransactionStatus{
			types.TRANSACTION_PENDING,
			types.TRANSACTION_PROCESSING,
		}).
		Updates(&models.Transaction{
			Status:      types.TRANSACTION_COMPLETED,
			ProcessedAt: &now,
		}).
		Error
}

// cancelBooking voids charges that never reached the gateway, computes the
// refund under the booking's policy and posts it through the balanced refund
// path. Whatever the guest forfeits settles to the host. Corrections never
// delete ledger rows.
func cancelBooking(tx *gorm.DB, booking *models.Booking, reason, actor string) (*models.Transaction, error) {
	// Entries with a gateway reference stay untouched; money may already be
	// moving and reconciliation resolves them.
	err := tx.
		Model(&models.Transaction{}).
		Where("booking_id = ?", booking.ID).
		Where("type IN ?", []types.TransactionType{
			types.TXN_BOOKING_PAYMENT,
			types.TXN_SECURITY_DEPOSIT,
		}).
		Where("status = ?", types.TRANSACTION_PENDING).
		Where("payout_id IS NULL AND gateway_ref IS NULL").
		Update("status", types.TRANSACTION_CANCELED).
		Error
	if err != nil {
		return nil, err
	}

	amount, err := refundForCancellation(tx, booking, nil, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	entry, err := postBalancedRefund(tx, booking, amount, types.JSONB{"reason": reason, "actor": actor})
	if err != nil {
		return nil, err
	}
	// the forfeited remainder of the host credit settles to the host
	if err := settleHostCredit(tx, booking.ID); err != nil {
		return nil, err
	}
	return entry, nil
}
