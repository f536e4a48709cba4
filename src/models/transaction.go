package models

import (
	"rms/src/types"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is a ledger entry. Rows are only ever appended or moved between
// statuses; a COMPLETED row is immutable and corrections are posted as new
// offsetting entries.
type Transaction struct {
	ID uuid.UUID `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`

	BookingID   uint                    `gorm:"index" json:"booking_id"`
	HostID      uint                    `gorm:"index" json:"host_id,omitempty"`
	Type        types.TransactionType   `json:"type"`
	Status      types.TransactionStatus `gorm:"default:'pending'" json:"status"`
	Amount      decimal.Decimal         `gorm:"type:numeric(18,4)" json:"amount"`
	Currency    string                  `json:"currency"`
	GatewayRef  *string                 `json:"gateway_ref,omitempty"`
	ProcessedAt *time.Time              `json:"processed_at,omitempty"`

	// PayoutID reserves a host credit for a payout batch. A credit with a
	// non-nil PayoutID is never selected by another batch run.
	PayoutID *uuid.UUID `gorm:"index" json:"payout_id,omitempty"`
	Frozen   bool       `gorm:"default:false" json:"frozen,omitempty"`

	Metadata types.JSONB `gorm:"type:jsonb" json:"metadata,omitempty"`

	types.Timestamps

	Booking Booking `gorm:"foreignKey:booking_id" json:"-"`
}
