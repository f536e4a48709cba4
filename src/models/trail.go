package models

import (
	"rms/src/types"

	"github.com/google/uuid"
)

// TrailLog records every state transition, dispute action and emergency
// override for audit. Rows are never updated or deleted.
type TrailLog struct {
	ID uuid.UUID `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`

	BookingID     *uint      `gorm:"index" json:"booking_id,omitempty"`
	PayoutID      *uuid.UUID `gorm:"index" json:"payout_id,omitempty"`
	Action        string     `json:"action"`
	Actor         string     `json:"actor"`
	FromStatus    string     `json:"from_status,omitempty"`
	ToStatus      string     `json:"to_status,omitempty"`
	Justification string     `json:"justification,omitempty"`

	types.Timestamps
}
