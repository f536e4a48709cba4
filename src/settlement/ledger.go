package settlement

import (
	"fmt"
	"rms/src/models"
	"rms/src/types"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Ledger helpers. Every function takes the caller's open transaction so a
// status change and its ledger entries commit or roll back as one unit.

func appendEntry(tx *gorm.DB, entry *models.Transaction) error {
	return tx.Create(entry).Error
}

// completedPaymentTotal sums the booking's settled BOOKING_PAYMENT entries.
func completedPaymentTotal(tx *gorm.DB, bookingID uint) (decimal.Decimal, error) {
	var raw *string
	err := tx.
		Model(&models.Transaction{}).
		Where(&models.Transaction{BookingID: bookingID, Type: types.TXN_BOOKING_PAYMENT, Status: types.TRANSACTION_COMPLETED}).
		Select("SUM(amount)::text").
		Scan(&raw).
		Error
	if err != nil {
		return decimal.Zero, err
	}
	if raw == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*raw)
}

// refundedTotal sums refunds that are already posted, including ones still in
// flight, so a concurrent second refund can never overdraw the payment.
func refundedTotal(tx *gorm.DB, bookingID uint) (decimal.Decimal, error) {
	var raw *string
	err := tx.
		Model(&models.Transaction{}).
		Where(&models.Transaction{BookingID: bookingID, Type: types.TXN_REFUND}).
		Where("status IN ?", []types.TransactionStatus{
			types.TRANSACTION_PENDING,
			types.TRANSACTION_PROCESSING,
			types.TRANSACTION_COMPLETED,
		}).
		Select("SUM(ABS(amount))::text").
		Scan(&raw).
		Error
	if err != nil {
		return decimal.Zero, err
	}
	if raw == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*raw)
}

// completeEntry moves a PENDING/PROCESSING entry to COMPLETED. COMPLETED
// entries are immutable; a zero rows-affected result means someone else
// already finalized it.
func completeEntry(tx *gorm.DB, entry *models.Transaction) (bool, error) {
	now := time.Now().UTC()
	res := tx.
		Model(&models.Transaction{}).
		Where("id = ?", entry.ID).
		Where("status IN ?", []types.TransactionStatus{
			types.TRANSACTION_PENDING,
			types.TRANSACTION_PROCESSING,
		}).
		Updates(&models.Transaction{
			Status:      types.TRANSACTION_COMPLETED,
			ProcessedAt: &now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func failEntry(tx *gorm.DB, entryID any, reason string) error {
	res := tx.
		Model(&models.Transaction{}).
		Where("id = ?", entryID).
		Where("status IN ?", []types.TransactionStatus{
			types.TRANSACTION_PENDING,
			types.TRANSACTION_PROCESSING,
		}).
		Updates(map[string]any{
			"status":   types.TRANSACTION_FAILED,
			"metadata": types.JSONB{"failure_reason": reason},
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("transaction %v is already terminal", entryID)
	}
	return nil
}

// freezeHostCredits flips the frozen marker on a booking's payout credits.
// Frozen credits are invisible to the Payout Batcher until the dispute is
// resolved.
func freezeHostCredits(tx *gorm.DB, bookingID uint, frozen bool) error {
	return tx.
		Model(&models.Transaction{}).
		Where(&models.Transaction{BookingID: bookingID, Type: types.TXN_HOST_PAYOUT}).
		Where("payout_id IS NULL").
		Update("frozen", frozen).
		Error
}
