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

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func disputeFlagKey(bookingID uint) string {
	return fmt.Sprintf("dispute:%d", bookingID)
}

// OpenDispute moves a booking to DISPUTED and freezes its payout credits
// until the dispute is resolved.
func OpenDispute(ctx context.Context, bookingID uint, reason, actor, idemKey string) (types.JSONB, error) {
	outcome, replayed, err := runIdempotent(ctx, idemKey, "open_dispute", func() (types.JSONB, error) {
		d := db.GetDb()
		var current models.Booking
		if err := d.
			Model(&models.Booking{}).
			Where("id = ?", bookingID).
			First(&current).
			Error; err != nil {
			return nil, err
		}
		if current.Status == types.BOOKING_DISPUTED {
			return nil, fmt.Errorf("%w: booking %d", ErrDisputeAlreadyOpen, bookingID)
		}
		outcome, err := applyTransition(ctx, bookingID, types.BOOKING_DISPUTED, reason, actor)
		if err != nil {
			return nil, err
		}
		if rdb := lib.GetRedisClient(); rdb != nil {
			if err := rdb.Set(ctx, disputeFlagKey(bookingID), reason, 0).Err(); err != nil {
				log.Printf("[redis] Failed to set dispute flag for booking %d: %s\n", bookingID, err.Error())
			}
		}
		return outcome, nil
	})
	if replayed {
		log.Printf("[dispute] Replayed idempotency key %s for booking %d\n", idemKey, bookingID)
	}
	return outcome, err
}

// ResolveDispute closes an open dispute. REFUND_GUEST refunds everything
// still refundable and cancels the booking; RELEASE_TO_HOST settles the host
// credit and completes it; SPLIT refunds the requested amount and releases
// the rest. Corrections are posted as offsetting entries, never by editing
// completed rows.
func ResolveDispute(ctx context.Context, bookingID uint, outcome types.DisputeOutcome, amount *decimal.Decimal, actor, idemKey string) (types.JSONB, error) {
	result, replayed, err := runIdempotent(ctx, idemKey, "resolve_dispute", func() (types.JSONB, error) {
		d := db.GetDb()
		var booking models.Booking
		var refund *models.Transaction
		target := types.BOOKING_COMPLETED

		err := d.Transaction(func(tx *gorm.DB) error {
			if err := tx.
				Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ?", bookingID).
				First(&booking).
				Error; err != nil {
				return err
			}
			if booking.Status != types.BOOKING_DISPUTED {
				return fmt.Errorf("%w: booking %d is not disputed", ErrInvalidTransition, bookingID)
			}

			switch outcome {
			case types.DISPUTE_REFUND_GUEST:
				target = types.BOOKING_CANCELED
				entry, err := postDisputeRefund(tx, &booking, nil, actor)
				if err != nil {
					return err
				}
				refund = entry
			case types.DISPUTE_SPLIT:
				if amount == nil {
					return fmt.Errorf("%w: split resolution requires an amount", ErrRefundExceedsPaid)
				}
				entry, err := postDisputeRefund(tx, &booking, amount, actor)
				if err != nil {
					return err
				}
				refund = entry
				if err := settleHostCredit(tx, booking.ID); err != nil {
					return err
				}
			case types.DISPUTE_RELEASE_TO_HOST:
				if err := settleHostCredit(tx, booking.ID); err != nil {
					return err
				}
			}

			if err := freezeHostCredits(tx, booking.ID, false); err != nil {
				return err
			}

			resolved := true
			updates := map[string]any{
				"status":            target,
				"status_changed_at": time.Now().UTC(),
				"dispute_resolved":  resolved,
			}
			if refund != nil {
				updates["refund_amount"] = refund.Amount.Abs()
			}
			res := tx.
				Model(&models.Booking{}).
				Where("id = ? AND status = ?", booking.ID, types.BOOKING_DISPUTED).
				Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: booking %d", ErrConcurrentModification, booking.ID)
			}

			trail := models.TrailLog{
				BookingID:     &booking.ID,
				Action:        fmt.Sprintf("dispute.%s", outcome),
				Actor:         actor,
				FromStatus:    string(types.BOOKING_DISPUTED),
				ToStatus:      string(target),
				Justification: fmt.Sprintf("dispute resolved: %s", outcome),
			}
			return tx.Create(&trail).Error
		})
		if err != nil {
			return nil, err
		}

		if rdb := lib.GetRedisClient(); rdb != nil {
			rdb.Del(ctx, disputeFlagKey(bookingID))
		}
		if refund != nil {
			if err := initiateRefund(ctx, &booking, refund); err != nil {
				log.Printf("Error initiating dispute refund for booking %d: %s\n", bookingID, err.Error())
			}
		}
		if err := lib.PublishTransactionUpdate("dispute.resolved", types.JSONB{
			"booking_id": bookingID,
			"outcome":    string(outcome),
			"status":     string(target),
		}); err != nil {
			log.Printf("Error publishing dispute event: %s\n", err.Error())
		}

		return types.JSONB{
			"booking_id": bookingID,
			"status":     string(target),
			"outcome":    string(outcome),
		}, nil
	})
	if replayed {
		log.Printf("[dispute] Replayed idempotency key %s for booking %d\n", idemKey, bookingID)
	}
	return result, err
}

// postDisputeRefund clamps the requested amount against what the guest paid
// and posts it through the balanced refund path. Disputes are not bound by the
// cancellation policy; everything still refundable is fair game.
func postDisputeRefund(tx *gorm.DB, booking *models.Booking, requested *decimal.Decimal, actor string) (*models.Transaction, error) {
	paid, err := completedPaymentTotal(tx, booking.ID)
	if err != nil {
		return nil, err
	}
	refunded, err := refundedTotal(tx, booking.ID)
	if err != nil {
		return nil, err
	}
	refund, err := clampRefund(requested, types.NewMoney(paid, booking.Currency), paid, refunded)
	if err != nil {
		return nil, err
	}
	return postBalancedRefund(tx, booking, refund, types.JSONB{"actor": actor, "dispute": true})
}

// postBalancedRefund posts a refund entry and keeps the ledger balanced: the
// amount comes out of the unsettled host credit first, then out of reversed
// platform fee and commission entries.
func postBalancedRefund(tx *gorm.DB, booking *models.Booking, refund types.Money, metadata types.JSONB) (*models.Transaction, error) {
	if !refund.Amount.IsPositive() {
		return nil, nil
	}

	remaining := refund.Amount
	remaining, err := drawDownCredit(tx, booking, types.TXN_HOST_PAYOUT, remaining)
	if err != nil {
		return nil, err
	}
	remaining, err = reverseCompleted(tx, booking, types.TXN_PLATFORM_FEE, remaining)
	if err != nil {
		return nil, err
	}
	if _, err = reverseCompleted(tx, booking, types.TXN_COMMISSION, remaining); err != nil {
		return nil, err
	}

	entry := models.Transaction{
		BookingID: booking.ID,
		HostID:    booking.HostID,
		Type:      types.TXN_REFUND,
		Status:    types.TRANSACTION_PENDING,
		Amount:    refund.Amount.Neg(),
		Currency:  refund.Currency,
		Metadata:  metadata,
	}
	if err := appendEntry(tx, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// drawDownCredit cancels the booking's unsettled credit of the given type and
// reposts it reduced by up to `amount`. Returns what is still left to cover.
func drawDownCredit(tx *gorm.DB, booking *models.Booking, txnType types.TransactionType, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return amount, nil
	}
	var credit models.Transaction
	err := tx.
		Model(&models.Transaction{}).
		Where(&models.Transaction{BookingID: booking.ID, Type: txnType}).
		Where("status IN ?", []types.TransactionStatus{
			types.TRANSACTION_PENDING,
			types.TRANSACTION_PROCESSING,
		}).
		Where("payout_id IS NULL").
		First(&credit).
		Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return amount, nil
		}
		return amount, err
	}
	size := credit.Amount.Abs()
	drawn := decimal.Min(size, amount)
	if err := tx.
		Model(&models.Transaction{}).
		Where("id = ?", credit.ID).
		Update("status", types.TRANSACTION_CANCELED).
		Error; err != nil {
		return amount, err
	}
	leftover := size.Sub(drawn)
	if leftover.IsPositive() {
		repost := models.Transaction{
			BookingID: booking.ID,
			HostID:    credit.HostID,
			Type:      txnType,
			Status:    types.TRANSACTION_PENDING,
			Amount:    leftover.Neg(),
			Currency:  credit.Currency,
			Metadata:  types.JSONB{"reduced_from": credit.ID.String()},
		}
		if err := appendEntry(tx, &repost); err != nil {
			return amount, err
		}
	}
	return amount.Sub(drawn), nil
}

// reverseCompleted posts an offsetting entry against a completed fee or
// commission row for up to `amount`, preserving the audit trail.
func reverseCompleted(tx *gorm.DB, booking *models.Booking, txnType types.TransactionType, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return amount, nil
	}
	var entry models.Transaction
	err := tx.
		Model(&models.Transaction{}).
		Where(&models.Transaction{BookingID: booking.ID, Type: txnType, Status: types.TRANSACTION_COMPLETED}).
		First(&entry).
		Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return amount, nil
		}
		return amount, err
	}
	size := entry.Amount.Abs()
	reversed := decimal.Min(size, amount)
	now := time.Now().UTC()
	offset := models.Transaction{
		BookingID:   booking.ID,
		Type:        txnType,
		Status:      types.TRANSACTION_COMPLETED,
		Amount:      reversed,
		Currency:    entry.Currency,
		ProcessedAt: &now,
		Metadata:    types.JSONB{"reversal_of": entry.ID.String()},
	}
	if err := appendEntry(tx, &offset); err != nil {
		return amount, err
	}
	return amount.Sub(reversed), nil
}

// EmergencyOverride bypasses the normal transition guards. It requires a
// justification and every use is recorded with actor "emergency".
func EmergencyOverride(ctx context.Context, bookingID uint, action, justification, idemKey string) (types.JSONB, error) {
	outcome, replayed, err := runIdempotent(ctx, idemKey, "emergency_override", func() (types.JSONB, error) {
		d := db.GetDb()
		var booking models.Booking
		var refund *models.Transaction
		var target types.BookingStatus

		err := d.Transaction(func(tx *gorm.DB) error {
			if err := tx.
				Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ?", bookingID).
				First(&booking).
				Error; err != nil {
				return err
			}

			updates := map[string]any{
				"status_changed_at": time.Now().UTC(),
			}
			switch action {
			case "force_cancel":
				target = types.BOOKING_CANCELED
				entry, err := postDisputeRefund(tx, &booking, nil, ActorEmergency)
				if err != nil {
					return err
				}
				refund = entry
				if refund != nil {
					updates["refund_amount"] = refund.Amount.Abs()
				}
			case "force_complete":
				target = types.BOOKING_COMPLETED
				if err := settleHostCredit(tx, booking.ID); err != nil {
					return err
				}
			default:
				return fmt.Errorf("%w: unknown emergency action %q", ErrInvalidTransition, action)
			}
			if booking.Status == target {
				return nil
			}
			updates["status"] = target

			if err := freezeHostCredits(tx, booking.ID, false); err != nil {
				return err
			}
			res := tx.
				Model(&models.Booking{}).
				Where("id = ? AND status = ?", booking.ID, booking.Status).
				Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: booking %d", ErrConcurrentModification, booking.ID)
			}

			trail := models.TrailLog{
				BookingID:     &booking.ID,
				Action:        fmt.Sprintf("emergency.%s", action),
				Actor:         ActorEmergency,
				FromStatus:    string(booking.Status),
				ToStatus:      string(target),
				Justification: justification,
			}
			return tx.Create(&trail).Error
		})
		if err != nil {
			return nil, err
		}

		if refund != nil {
			if err := initiateRefund(ctx, &booking, refund); err != nil {
				log.Printf("Error initiating emergency refund for booking %d: %s\n", bookingID, err.Error())
			}
		}
		if err := lib.PublishTransactionUpdate("emergency.override", types.JSONB{
			"booking_id": bookingID,
			"action":     action,
			"status":     string(target),
		}); err != nil {
			log.Printf("Error publishing override event: %s\n", err.Error())
		}

		return types.JSONB{
			"booking_id": bookingID,
			"status":     string(target),
			"action":     action,
		}, nil
	})
	if replayed {
		log.Printf("[emergency] Replayed idempotency key %s for booking %d\n", idemKey, bookingID)
	}
	return outcome, err
}
