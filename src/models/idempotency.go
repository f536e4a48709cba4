package models

import (
	"rms/src/types"
)

// IdempotencyKey maps a caller-supplied key to the outcome of the first
// request that carried it. Replays return the stored outcome instead of
// re-applying effects.
type IdempotencyKey struct {
	Key       string      `gorm:"primarykey" json:"key"`
	Operation string      `json:"operation"`
	Outcome   types.JSONB `gorm:"type:jsonb" json:"outcome,omitempty"`
	Status    string      `gorm:"default:'completed'" json:"status"`

	types.Timestamps
}
