package lib

import (
	"context"
	"errors"
	"os"
	"rms/src/types"

	"github.com/stripe/stripe-go/v82"
)

var stripeClient *stripe.Client

func GetStripeClient() *stripe.Client {
	if stripeClient != nil {
		return stripeClient
	}
	apiKey := os.Getenv("STRIPE_SECRET_KEY")
	sc := stripe.NewClient(apiKey)
	stripeClient = sc

	return sc
}

func NewStripeClient(c *stripe.Client) {
	stripeClient = c
}

// ErrRejected marks a gateway decline (invalid card, fraud block). Callers
// must not retry these silently.
var ErrRejected = errors.New("gateway rejected the request")

func asMinorUnits(m types.Money) int64 {
	return m.Amount.Shift(types.CurrencyExponent(m.Currency)).IntPart()
}

func mapStripeError(err error) error {
	if err == nil {
		return nil
	}
	var serr *stripe.Error
	if errors.As(err, &serr) {
		switch serr.Type {
		case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest:
			return errors.Join(ErrRejected, err)
		}
	}
	return err
}

// Charge initiates a payment for a booking. The returned reference is stored
// on the ledger entry; the webhook completes or fails it later.
func Charge(ctx context.Context, amount types.Money, source string, metadata map[string]string) (string, error) {
	sc := GetStripeClient()
	params := stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(asMinorUnits(amount)),
		Currency:      stripe.String(amount.Currency),
		PaymentMethod: stripe.String(source),
		Confirm:       stripe.Bool(true),
	}
	params.Metadata = metadata
	pi, err := sc.V1PaymentIntents.Create(ctx, &params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return pi.ID, nil
}

// RefundCharge refunds part or all of a completed payment.
func RefundCharge(ctx context.Context, gatewayRef string, amount types.Money, metadata map[string]string) (string, error) {
	sc := GetStripeClient()
	params := stripe.RefundCreateParams{
		PaymentIntent: stripe.String(gatewayRef),
		Amount:        stripe.Int64(asMinorUnits(amount)),
	}
	params.Metadata = metadata
	refund, err := sc.V1Refunds.Create(ctx, &params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return refund.ID, nil
}

// Transfer moves settled host earnings to the host's connected account.
func Transfer(ctx context.Context, amount types.Money, destination string, metadata map[string]string) (string, error) {
	sc := GetStripeClient()
	params := stripe.TransferCreateParams{
		Amount:      stripe.Int64(asMinorUnits(amount)),
		Currency:    stripe.String(amount.Currency),
		Destination: stripe.String(destination),
	}
	params.Metadata = metadata
	tr, err := sc.V1Transfers.Create(ctx, &params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return tr.ID, nil
}

// PaymentStatus polls the gateway for a charge initiated earlier. Used by the
// reconciliation job for transactions stuck PENDING/PROCESSING.
func PaymentStatus(ctx context.Context, gatewayRef string) (string, error) {
	sc := GetStripeClient()
	pi, err := sc.V1PaymentIntents.Retrieve(ctx, gatewayRef, nil)
	if err != nil {
		return "", mapStripeError(err)
	}
	return string(pi.Status), nil
}

// RefundStatus polls the gateway for a refund initiated earlier. Refund
// references are not payment intents and need their own endpoint.
func RefundStatus(ctx context.Context, gatewayRef string) (string, error) {
	sc := GetStripeClient()
	re, err := sc.V1Refunds.Retrieve(ctx, gatewayRef, nil)
	if err != nil {
		return "", mapStripeError(err)
	}
	return string(re.Status), nil
}
