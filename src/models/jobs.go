package models

import (
	"rms/src/types"
	"time"

	"github.com/google/uuid"
)

// JobTask records a scheduled background run (payout batching,
// reconciliation) so runs can be audited and recovered after restart.
type JobTask struct {
	ID uuid.UUID `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`

	Name    string      `json:"-"`
	JobType string      `json:"-"`
	RunsAt  time.Time   `json:"-"`
	Payload types.JSONB `gorm:"type:jsonb" json:"-"`
	Status  string      `gorm:"default:'pending'" json:"-"`

	types.Timestamps
}
