package models

import "rms/src/types"

type User struct {
	ID              uint    `gorm:"primarykey" json:"id"`
	Email           string  `gorm:"uniqueIndex" json:"email,omitempty"`
	Name            string  `json:"name,omitempty"`
	Role            string  `json:"role,omitempty"`
	PayoutAccountID *string `json:"payout_account_id,omitempty"`

	types.Timestamps
}
