package models

import (
	"rms/src/types"
	"time"

	"github.com/shopspring/decimal"
)

type Booking struct {
	ID              uint                     `gorm:"primarykey" json:"id"`
	Status          types.BookingStatus      `gorm:"default:'pending'" json:"status,omitempty"`
	Type            types.BookingType        `json:"type,omitempty"`
	TotalAmount     decimal.Decimal          `gorm:"type:numeric(18,4)" json:"total_amount"`
	Currency        string                   `json:"currency,omitempty"`
	PropertyID      uint                     `json:"property_id,omitempty"`
	GuestID         uint                     `json:"guest_id,omitempty"`
	HostID          uint                     `json:"host_id,omitempty"`
	Policy          types.CancellationPolicy `gorm:"default:'flexible'" json:"policy,omitempty"`
	CheckIn         time.Time                `json:"check_in,omitempty"`
	CheckOut        time.Time                `json:"check_out,omitempty"`
	StatusChangedAt *time.Time               `json:"status_changed_at,omitempty"`
	RefundAmount    *decimal.Decimal         `gorm:"type:numeric(18,4)" json:"refund_amount,omitempty"`
	DisputeResolved *bool                    `json:"dispute_resolved,omitempty"`
	GatewayRef      *string                  `json:"gateway_ref,omitempty"`
	Metadata        types.JSONB              `gorm:"type:jsonb" json:"metadata,omitempty"`

	Host         *User          `gorm:"foreignKey:host_id" json:"host,omitempty"`
	Guest        *User          `gorm:"foreignKey:guest_id" json:"guest,omitempty"`
	Transactions []*Transaction `json:"transactions,omitempty"`

	types.Timestamps
}
