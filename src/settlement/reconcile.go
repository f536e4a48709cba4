package settlement

import (
	"context"
	"log"
	"rms/src/config"
	"rms/src/db"
	"rms/src/lib"
	"rms/src/models"
	"rms/src/types"
	"time"

	"gorm.io/gorm"
)

// Gateway lookups behind vars so tests can swap them out, like the client
// setters in lib.
var (
	paymentStatus = lib.PaymentStatus
	refundStatus  = lib.RefundStatus
)

// ReconcileStuckTransactions resolves ledger entries that have sat PENDING or
// PROCESSING past the reconcile window, usually because a gateway call timed
// out after the money moved. It runs on the scheduler.
func ReconcileStuckTransactions() {
	ctx := context.Background()
	d := db.GetDb()
	cutoff := time.Now().UTC().Add(-config.ReconcileAfter())

	stale := d.
		Model(&models.Transaction{}).
		Where("type IN ?", []types.TransactionType{types.TXN_BOOKING_PAYMENT, types.TXN_REFUND}).
		Where("status IN ?", []types.TransactionStatus{
			types.TRANSACTION_PENDING,
			types.TRANSACTION_PROCESSING,
		}).
		Where("updated_at < ?", cutoff).
		Session(&gorm.Session{})

	// Entries without a reference never reached the gateway; no money moved
	// and there is nothing to poll.
	var orphaned []*models.Transaction
	if err := stale.Where("gateway_ref IS NULL").Find(&orphaned).Error; err != nil {
		log.Printf("Error listing unacknowledged transactions: %s\n", err.Error())
		return
	}
	for _, entry := range orphaned {
		if err := failEntryNow(entry, "gateway call timed out before acknowledgement"); err != nil {
			log.Printf("Error failing transaction %s: %s\n", entry.ID, err.Error())
		}
	}

	var stuck []*models.Transaction
	if err := stale.Where("gateway_ref IS NOT NULL").Find(&stuck).Error; err != nil {
		log.Printf("Error listing stuck transactions: %s\n", err.Error())
		return
	}
	if len(stuck) == 0 {
		return
	}
	log.Printf("[reconcile] Checking %d stuck transactions\n", len(stuck))

	for _, entry := range stuck {
		var status string
		var err error
		if entry.Type == types.TXN_REFUND {
			status, err = refundStatus(ctx, *entry.GatewayRef)
		} else {
			status, err = paymentStatus(ctx, *entry.GatewayRef)
		}
		if err != nil {
			log.Printf("Error fetching gateway status for %s: %s\n", *entry.GatewayRef, err.Error())
			continue
		}
		switch status {
		case "succeeded":
			if entry.Type == types.TXN_REFUND {
				if err := ConfirmRefund(ctx, *entry.GatewayRef); err != nil {
					log.Printf("Error reconciling refund %s: %s\n", entry.ID, err.Error())
				}
			} else {
				if err := ConfirmPayment(ctx, *entry.GatewayRef); err != nil {
					log.Printf("Error reconciling payment %s: %s\n", entry.ID, err.Error())
				}
			}
		case "canceled", "failed":
			if err := failEntryNow(entry, "cancelled at gateway"); err != nil {
				log.Printf("Error failing transaction %s: %s\n", entry.ID, err.Error())
			}
		default:
			// requires_action, processing and friends: leave for the next pass
		}
	}
}

// ReconcileStuckPayouts confirms or fails PROCESSING payouts whose transfer
// call timed out before we saw a result.
func ReconcileStuckPayouts() {
	ctx := context.Background()
	d := db.GetDb()
	cutoff := time.Now().UTC().Add(-config.ReconcileAfter())

	var stuck []*models.Payout
	err := d.
		Model(&models.Payout{}).
		Where(&models.Payout{Status: types.PAYOUT_PROCESSING}).
		Where("updated_at < ?", cutoff).
		Find(&stuck).
		Error
	if err != nil {
		log.Printf("Error listing stuck payouts: %s\n", err.Error())
		return
	}

	for _, payout := range stuck {
		if payout.TransferRef == nil {
			// the transfer never got a reference; safe to retry from FAILED
			if err := failPayout(payout, "transfer timed out before acknowledgement"); err != nil {
				log.Printf("Error failing payout %s: %s\n", payout.ID, err.Error())
			}
			continue
		}
		if err := ConfirmTransfer(ctx, *payout.TransferRef); err != nil {
			log.Printf("Error reconciling payout %s: %s\n", payout.ID, err.Error())
		}
	}
}
