package settlement

import "errors"

var (
	// ErrInvalidTransition is returned for a status change the booking state
	// graph does not allow. Not retryable.
	ErrInvalidTransition = errors.New("invalid booking status transition")
	// ErrConcurrentModification is returned when another writer won the race
	// for the same booking or ledger credits. Retryable with the same
	// idempotency key.
	ErrConcurrentModification = errors.New("record was modified concurrently")
	ErrInvalidRateConfig      = errors.New("invalid commission rate configuration")
	ErrRefundExceedsPaid      = errors.New("refund exceeds completed payments")
	ErrDisputeAlreadyOpen     = errors.New("dispute already open for booking")
	// ErrGatewayTimeout means the gateway call did not answer in time. The
	// transaction stays PENDING/PROCESSING and reconciliation resolves it.
	ErrGatewayTimeout = errors.New("gateway timed out")
	// ErrGatewayRejected terminates the transaction as FAILED and requires
	// operator action; it may reflect fraud or invalid payment details.
	ErrGatewayRejected           = errors.New("gateway rejected the operation")
	ErrInsufficientPayoutBalance = errors.New("host balance below minimum payout")
)
