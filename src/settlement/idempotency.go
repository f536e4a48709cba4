package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"rms/src/db"
	"rms/src/lib"
	"rms/src/models"
	"rms/src/types"
	"time"

	"gorm.io/gorm"
)

const idempotencyTTL = 24 * time.Hour

// runIdempotent executes fn at most once per key. The key row is reserved
// before fn runs, so a concurrent request with the same key never re-applies
// effects: it replays the recorded outcome, or fails with
// ErrConcurrentModification while the first attempt is still in flight.
// Failed attempts release the reservation so the caller may retry.
func runIdempotent(ctx context.Context, key, operation string, fn func() (types.JSONB, error)) (types.JSONB, bool, error) {
	if key == "" {
		out, err := fn()
		return out, false, err
	}

	if outcome, ok := cachedOutcome(ctx, key); ok {
		return outcome, true, nil
	}

	d := db.GetDb()
	reservation := models.IdempotencyKey{
		Key:       key,
		Operation: operation,
		Status:    "pending",
	}
	if err := d.Create(&reservation).Error; err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, false, err
		}
		var existing models.IdempotencyKey
		if ferr := d.
			Model(&models.IdempotencyKey{}).
			Where(&models.IdempotencyKey{Key: key}).
			First(&existing).
			Error; ferr != nil {
			return nil, false, ferr
		}
		if existing.Operation != operation {
			return nil, false, fmt.Errorf("idempotency key %q was used for %s", key, existing.Operation)
		}
		if existing.Status != "completed" {
			return nil, false, fmt.Errorf("%w: request with key %q still in flight", ErrConcurrentModification, key)
		}
		return existing.Outcome, true, nil
	}

	outcome, err := fn()
	if err != nil {
		if derr := d.Delete(&models.IdempotencyKey{}, "key = ?", key).Error; derr != nil {
			log.Printf("Error releasing idempotency key %s: %s\n", key, derr.Error())
		}
		return nil, false, err
	}

	if uerr := d.
		Model(&models.IdempotencyKey{}).
		Where("key = ?", key).
		Updates(map[string]any{"outcome": outcome, "status": "completed"}).
		Error; uerr != nil {
		return nil, false, uerr
	}
	cacheOutcome(ctx, key, outcome)
	return outcome, false, nil
}

func cachedOutcome(ctx context.Context, key string) (types.JSONB, bool) {
	rdb := lib.GetRedisClient()
	if rdb == nil {
		return nil, false
	}
	raw, err := rdb.Get(ctx, fmt.Sprintf("idem:%s", key)).Result()
	if err != nil {
		return nil, false
	}
	var outcome types.JSONB
	if err := json.Unmarshal([]byte(raw), &outcome); err != nil {
		return nil, false
	}
	return outcome, true
}

func cacheOutcome(ctx context.Context, key string, outcome types.JSONB) {
	rdb := lib.GetRedisClient()
	if rdb == nil {
		return
	}
	raw, err := json.Marshal(outcome)
	if err != nil {
		return
	}
	if err := rdb.Set(ctx, fmt.Sprintf("idem:%s", key), string(raw), idempotencyTTL).Err(); err != nil {
		log.Printf("[redis] Failed to cache idempotency outcome for %s: %s\n", key, err.Error())
	}
}
