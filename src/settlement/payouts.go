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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// eligibleCredits returns the host's settled payout credits that are not yet
// reserved by a payout and not frozen by an open dispute.
func eligibleCredits(tx *gorm.DB, hostID uint, asOf time.Time) ([]*models.Transaction, error) {
	var credits []*models.Transaction
	err := tx.
		Model(&models.Transaction{}).
		Where(&models.Transaction{HostID: hostID, Type: types.TXN_HOST_PAYOUT, Status: types.TRANSACTION_COMPLETED}).
		Where("payout_id IS NULL AND frozen = false").
		Where("processed_at <= ?", asOf).
		Order("processed_at asc").
		Find(&credits).
		Error
	return credits, err
}

// selectBatch picks the credits that form one payout. The first credit fixes
// the batch currency; credits in other currencies wait for their own batch.
func selectBatch(credits []*models.Transaction) (decimal.Decimal, string, []uuid.UUID) {
	if len(credits) == 0 {
		return decimal.Zero, "", nil
	}
	currency := credits[0].Currency
	total := decimal.Zero
	ids := make([]uuid.UUID, 0, len(credits))
	for _, c := range credits {
		if c.Currency != currency {
			continue
		}
		total = total.Add(c.Amount.Abs())
		ids = append(ids, c.ID)
	}
	return total, currency, ids
}

// BuildPayout gathers a host's eligible credits into a new PENDING payout and
// reserves each one against it. Credits below the minimum threshold stay
// unreserved for a later batch.
func BuildPayout(ctx context.Context, hostID uint, method types.PayoutMethod, asOf time.Time, idemKey string) (*models.Payout, error) {
	var payout *models.Payout
	outcome, replayed, err := runIdempotent(ctx, idemKey, "build_payout", func() (types.JSONB, error) {
		d := db.GetDb()
		err := d.Transaction(func(tx *gorm.DB) error {
			credits, err := eligibleCredits(tx, hostID, asOf)
			if err != nil {
				return err
			}
			if len(credits) == 0 {
				return fmt.Errorf("%w: host %d has no eligible credits", ErrInsufficientPayoutBalance, hostID)
			}

			total, currency, ids := selectBatch(credits)
			minimum := decimal.NewFromInt(int64(config.MinimumPayout()))
			if total.LessThan(minimum) {
				return fmt.Errorf("%w: host %d has %s %s, minimum is %s", ErrInsufficientPayoutBalance, hostID, total.String(), currency, minimum.String())
			}

			payout = &models.Payout{
				HostID:   hostID,
				Amount:   total,
				Currency: currency,
				Status:   types.PAYOUT_PENDING,
				Method:   method,
			}
			if err := tx.Create(payout).Error; err != nil {
				return err
			}

			res := tx.
				Model(&models.Transaction{}).
				Where("id IN ? AND payout_id IS NULL", ids).
				Update("payout_id", payout.ID)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != int64(len(ids)) {
				// another batch reserved some of these credits first
				return fmt.Errorf("%w: payout reservation for host %d", ErrConcurrentModification, hostID)
			}

			trail := models.TrailLog{
				PayoutID:      &payout.ID,
				Action:        "payout.created",
				Actor:         "batcher",
				ToStatus:      string(types.PAYOUT_PENDING),
				Justification: fmt.Sprintf("%d credits totalling %s %s", len(ids), total.String(), currency),
			}
			return tx.Create(&trail).Error
		})
		if err != nil {
			return nil, err
		}
		return types.JSONB{
			"payout_id": payout.ID.String(),
			"amount":    payout.Amount.String(),
			"currency":  payout.Currency,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		log.Printf("[payout] Replayed idempotency key %s for host %d\n", idemKey, hostID)
		return findPayoutFromOutcome(outcome)
	}
	return payout, nil
}

func findPayoutFromOutcome(outcome types.JSONB) (*models.Payout, error) {
	raw, ok := outcome["payout_id"].(string)
	if !ok {
		return nil, errors.New("recorded payout outcome is missing its id")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	var payout models.Payout
	if err := db.GetDb().Where("id = ?", id).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

// ProcessPayout sends a PENDING or FAILED payout to the gateway. A rejection
// marks it FAILED with the reason; a timeout leaves it PROCESSING for the
// reconciler to settle.
func ProcessPayout(ctx context.Context, payoutID uuid.UUID) error {
	d := db.GetDb()
	var payout models.Payout
	if err := d.Where("id = ?", payoutID).First(&payout).Error; err != nil {
		return err
	}
	if payout.Status != types.PAYOUT_PENDING && payout.Status != types.PAYOUT_FAILED {
		return fmt.Errorf("%w: payout %s is %s", ErrInvalidTransition, payout.ID, payout.Status)
	}

	var host models.User
	if err := d.Where("id = ?", payout.HostID).First(&host).Error; err != nil {
		return err
	}
	if host.PayoutAccountID == nil {
		return failPayout(&payout, "host has no payout account")
	}

	res := d.
		Model(&models.Payout{}).
		Where("id = ? AND status = ?", payout.ID, payout.Status).
		Update("status", types.PAYOUT_PROCESSING)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: payout %s", ErrConcurrentModification, payout.ID)
	}

	tctx, cancel := context.WithTimeout(ctx, config.GatewayTimeout())
	defer cancel()
	ref, err := lib.Transfer(tctx, types.NewMoney(payout.Amount, payout.Currency), *host.PayoutAccountID, map[string]string{
		"payout_id": payout.ID.String(),
	})
	if err != nil {
		if errors.Is(err, lib.ErrRejected) {
			if ferr := failPayout(&payout, err.Error()); ferr != nil {
				return ferr
			}
			return fmt.Errorf("%w: %s", ErrGatewayRejected, err.Error())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			// still PROCESSING; the reconciler will confirm or fail it
			log.Printf("[payout] Transfer for %s timed out, leaving for reconciliation\n", payout.ID)
			return fmt.Errorf("%w: transfer for payout %s", ErrGatewayTimeout, payout.ID)
		}
		return err
	}

	return d.
		Model(&models.Payout{}).
		Where("id = ?", payout.ID).
		Update("transfer_ref", ref).
		Error
}

// RetryPayout resubmits a FAILED payout. The batch is unchanged; its credits
// kept their reservation when the transfer failed.
func RetryPayout(ctx context.Context, payoutID uuid.UUID) error {
	return ProcessPayout(ctx, payoutID)
}

func failPayout(payout *models.Payout, reason string) error {
	return db.GetDb().
		Model(&models.Payout{}).
		Where("id = ?", payout.ID).
		Updates(map[string]any{
			"status":         types.PAYOUT_FAILED,
			"failure_reason": reason,
		}).
		Error
}

// ConfirmTransfer marks the payout COMPLETED off the gateway webhook and
// stamps its reserved credits. Credits stay attached to the payout so every
// credit settles at most once.
func ConfirmTransfer(ctx context.Context, transferRef string) error {
	d := db.GetDb()
	var payout models.Payout
	if err := d.Where("transfer_ref = ?", transferRef).First(&payout).Error; err != nil {
		return err
	}
	if payout.Status == types.PAYOUT_COMPLETED {
		return nil
	}
	now := time.Now().UTC()
	err := d.Transaction(func(tx *gorm.DB) error {
		res := tx.
			Model(&models.Payout{}).
			Where("id = ? AND status = ?", payout.ID, types.PAYOUT_PROCESSING).
			Updates(map[string]any{
				"status":       types.PAYOUT_COMPLETED,
				"processed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: payout %s", ErrConcurrentModification, payout.ID)
		}
		trail := models.TrailLog{
			PayoutID:   &payout.ID,
			Action:     "payout.completed",
			Actor:      "gateway",
			FromStatus: string(types.PAYOUT_PROCESSING),
			ToStatus:   string(types.PAYOUT_COMPLETED),
		}
		return tx.Create(&trail).Error
	})
	if err != nil {
		return err
	}
	if err := lib.PublishTransactionUpdate("payout.completed", types.JSONB{
		"payout_id": payout.ID.String(),
		"host_id":   payout.HostID,
		"amount":    payout.Amount.String(),
	}); err != nil {
		log.Printf("Error publishing payout event: %s\n", err.Error())
	}
	return nil
}

// FailTransfer marks a PROCESSING payout FAILED off the gateway webhook. The
// credits keep their reservation so a retry pays the same batch.
func FailTransfer(ctx context.Context, transferRef, reason string) error {
	d := db.GetDb()
	var payout models.Payout
	if err := d.Where("transfer_ref = ?", transferRef).First(&payout).Error; err != nil {
		return err
	}
	res := d.
		Model(&models.Payout{}).
		Where("id = ? AND status = ?", payout.ID, types.PAYOUT_PROCESSING).
		Updates(map[string]any{
			"status":         types.PAYOUT_FAILED,
			"failure_reason": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("[payout] Transfer %s failed: %s\n", transferRef, reason)
	}
	return nil
}

// CancelPayout releases a PENDING or FAILED payout's credits back to the
// eligible pool. PROCESSING and COMPLETED payouts cannot be cancelled.
func CancelPayout(ctx context.Context, payoutID uuid.UUID) error {
	d := db.GetDb()
	return d.Transaction(func(tx *gorm.DB) error {
		var payout models.Payout
		if err := tx.Where("id = ?", payoutID).First(&payout).Error; err != nil {
			return err
		}
		if payout.Status != types.PAYOUT_PENDING && payout.Status != types.PAYOUT_FAILED {
			return fmt.Errorf("%w: payout %s is %s", ErrInvalidTransition, payout.ID, payout.Status)
		}
		res := tx.
			Model(&models.Payout{}).
			Where("id = ? AND status = ?", payout.ID, payout.Status).
			Update("status", types.PAYOUT_CANCELED)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: payout %s", ErrConcurrentModification, payout.ID)
		}
		if err := tx.
			Model(&models.Transaction{}).
			Where("payout_id = ?", payout.ID).
			Update("payout_id", nil).
			Error; err != nil {
			return err
		}
		trail := models.TrailLog{
			PayoutID:   &payout.ID,
			Action:     "payout.cancelled",
			Actor:      "operator",
			FromStatus: string(payout.Status),
			ToStatus:   string(types.PAYOUT_CANCELED),
		}
		return tx.Create(&trail).Error
	})
}

// RunPayoutBatch builds and processes payouts for every host that has
// eligible credits. It runs on the scheduler and records each run as a
// JobTask.
func RunPayoutBatch() {
	ctx := context.Background()
	d := db.GetDb()
	now := time.Now().UTC()

	task := models.JobTask{
		Name:    "payout-batch",
		JobType: "cron",
		RunsAt:  now,
		Status:  "running",
	}
	if err := d.Create(&task).Error; err != nil {
		log.Printf("Error recording payout batch run: %s\n", err.Error())
	}

	var hostIDs []uint
	err := d.
		Model(&models.Transaction{}).
		Where(&models.Transaction{Type: types.TXN_HOST_PAYOUT, Status: types.TRANSACTION_COMPLETED}).
		Where("payout_id IS NULL AND frozen = false").
		Distinct("host_id").
		Pluck("host_id", &hostIDs).
		Error
	if err != nil {
		log.Printf("Error listing hosts for payout batch: %s\n", err.Error())
		return
	}

	built := 0
	for _, hostID := range hostIDs {
		payout, err := BuildPayout(ctx, hostID, types.PAYOUT_STRIPE, now, fmt.Sprintf("batch:%s:%d", now.Format("2006-01-02T15"), hostID))
		if err != nil {
			if errors.Is(err, ErrInsufficientPayoutBalance) {
				continue
			}
			log.Printf("Error building payout for host %d: %s\n", hostID, err.Error())
			continue
		}
		built++
		if err := ProcessPayout(ctx, payout.ID); err != nil {
			log.Printf("Error processing payout %s: %s\n", payout.ID, err.Error())
		}
	}

	if err := d.
		Model(&models.JobTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]any{
			"status":  "completed",
			"payload": types.JSONB{"hosts": len(hostIDs), "payouts": built},
		}).
		Error; err != nil {
		log.Printf("Error closing payout batch run: %s\n", err.Error())
	}
	log.Printf("[batch] Payout run finished: %d hosts scanned, %d payouts built\n", len(hostIDs), built)
}
