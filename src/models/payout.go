package models

import (
	"rms/src/types"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Payout struct {
	ID uuid.UUID `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`

	HostID        uint               `gorm:"index" json:"host_id"`
	Amount        decimal.Decimal    `gorm:"type:numeric(18,4)" json:"amount"`
	Currency      string             `json:"currency"`
	Status        types.PayoutStatus `gorm:"default:'pending'" json:"status"`
	Method        types.PayoutMethod `json:"method"`
	TransferRef   *string            `json:"transfer_ref,omitempty"`
	FailureReason *string            `json:"failure_reason,omitempty"`
	ProcessedAt   *time.Time         `json:"processed_at,omitempty"`

	Transactions []*Transaction `gorm:"foreignKey:payout_id" json:"transactions,omitempty"`

	types.Timestamps
}
