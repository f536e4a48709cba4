package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty,omitnil"`
}

type JSONB map[string]any

func (a JSONB) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *JSONB) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	return nil
}

type BookingStatus string

const (
	BOOKING_PENDING   BookingStatus = "pending"
	BOOKING_CONFIRMED BookingStatus = "confirmed"
	BOOKING_CANCELED  BookingStatus = "cancelled"
	BOOKING_COMPLETED BookingStatus = "completed"
	BOOKING_DISPUTED  BookingStatus = "disputed"
)

type BookingType string

const (
	BOOKING_SHORT_TERM BookingType = "short_term"
	BOOKING_LONG_TERM  BookingType = "long_term"
)

type TransactionType string

const (
	TXN_BOOKING_PAYMENT  TransactionType = "booking_payment"
	TXN_PLATFORM_FEE     TransactionType = "platform_fee"
	TXN_HOST_PAYOUT      TransactionType = "host_payout"
	TXN_REFUND           TransactionType = "refund"
	TXN_SECURITY_DEPOSIT TransactionType = "security_deposit"
	TXN_COMMISSION       TransactionType = "commission"
)

type TransactionStatus string

const (
	TRANSACTION_PENDING    TransactionStatus = "pending"
	TRANSACTION_PROCESSING TransactionStatus = "processing"
	TRANSACTION_COMPLETED  TransactionStatus = "completed"
	TRANSACTION_FAILED     TransactionStatus = "failed"
	TRANSACTION_CANCELED   TransactionStatus = "cancelled"
)

type PayoutStatus string

const (
	PAYOUT_PENDING    PayoutStatus = "pending"
	PAYOUT_PROCESSING PayoutStatus = "processing"
	PAYOUT_COMPLETED  PayoutStatus = "completed"
	PAYOUT_FAILED     PayoutStatus = "failed"
	PAYOUT_CANCELED   PayoutStatus = "cancelled"
)

type PayoutMethod string

const (
	PAYOUT_BANK_TRANSFER PayoutMethod = "bank_transfer"
	PAYOUT_PAYPAL        PayoutMethod = "paypal"
	PAYOUT_STRIPE        PayoutMethod = "stripe"
	PAYOUT_WALLET        PayoutMethod = "wallet"
)

type CancellationPolicy string

const (
	POLICY_FULL     CancellationPolicy = "full"
	POLICY_FLEXIBLE CancellationPolicy = "flexible"
	POLICY_STRICT   CancellationPolicy = "strict"
)

type DisputeOutcome string

const (
	DISPUTE_REFUND_GUEST    DisputeOutcome = "refund_guest"
	DISPUTE_RELEASE_TO_HOST DisputeOutcome = "release_to_host"
	DISPUTE_SPLIT           DisputeOutcome = "split"
)

type Env string

const (
	Local      Env = "local"
	Test       Env = "test"
	Production Env = "production"
)

type TransitionRequestBody struct {
	Status BookingStatus `json:"status" binding:"required,oneof=confirmed cancelled completed disputed"`
	Reason string        `json:"reason,omitempty"`
}

type RefundRequestBody struct {
	Amount string `json:"amount,omitempty"`
	Reason string `json:"reason" binding:"required"`
}

type OpenDisputeRequestBody struct {
	Reason string `json:"reason" binding:"required"`
}

type ResolveDisputeRequestBody struct {
	Outcome DisputeOutcome `json:"outcome" binding:"required,oneof=refund_guest release_to_host split"`
	Amount  string         `json:"amount,omitempty"`
}

type EmergencyOverrideRequestBody struct {
	Action        string `json:"action" binding:"required,oneof=force_cancel force_complete"`
	Justification string `json:"justification" binding:"required,min=10"`
}

type BuildPayoutRequestBody struct {
	HostID uint         `json:"host_id" binding:"required"`
	Method PayoutMethod `json:"method" binding:"required,oneof=bank_transfer paypal stripe wallet"`
	AsOf   *string      `json:"as_of,omitempty" time_format:"2006-01-02 15:04:05 -07:00"`
}

type SimpleRequestParams struct {
	ID uint `uri:"id" binding:"required"`
}

type PayoutRequestParams struct {
	ID string `uri:"id" binding:"required,uuid"`
}

type Claims struct {
	Username    string   `json:"username"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

type Handler func(payload string)
