package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"rms/src/settlement"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// chargeRefundIDs pulls the refund ids off a charge event. Stripe omits the
// refunds list unless it is expanded, so it may be nil.
func chargeRefundIDs(ch *stripe.Charge) []string {
	if ch.Refunds == nil {
		return nil
	}
	ids := make([]string, 0, len(ch.Refunds.Data))
	for _, refund := range ch.Refunds.Data {
		if refund != nil {
			ids = append(ids, refund.ID)
		}
	}
	return ids
}

func stripeWebhookRoute(g *gin.Engine) *gin.RouterGroup {
	apiv1 := apiv1Group(g)
	apiv1.POST("/webhook/stripe", func(ctx *gin.Context) {
		payload, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			log.Printf("Error reading request body: %s\n", err.Error())
			ctx.Status(http.StatusServiceUnavailable)
			return
		}
		whsecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
		event, err := webhook.ConstructEvent(payload, ctx.GetHeader("Stripe-Signature"), whsecret)
		if err != nil {
			log.Printf("Error verifying webhook signature: %s\n", err.Error())
			ctx.Status(http.StatusBadRequest)
			return
		}
		log.Printf("[StripeEvent] %s\n", event.Type)
		switch event.Type {
		case "payment_intent.succeeded":
			var pi stripe.PaymentIntent
			if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
				log.Printf("[Stripe] Error parsing PaymentIntent: %s\n", err.Error())
				break
			}
			if err := settlement.ConfirmPayment(ctx, pi.ID); err != nil {
				log.Printf("Error confirming payment %s: %s\n", pi.ID, err.Error())
			}
		case "payment_intent.payment_failed":
			var pi stripe.PaymentIntent
			if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
				log.Printf("[Stripe] Error parsing PaymentIntent: %s\n", err.Error())
				break
			}
			reason := "payment failed"
			if pi.LastPaymentError != nil {
				reason = pi.LastPaymentError.Msg
			}
			if err := settlement.FailPayment(ctx, pi.ID, reason); err != nil {
				log.Printf("Error failing payment %s: %s\n", pi.ID, err.Error())
			}
		case "charge.refunded":
			var ch stripe.Charge
			if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
				log.Printf("[Stripe] Error parsing Charge: %s\n", err.Error())
				break
			}
			for _, id := range chargeRefundIDs(&ch) {
				if err := settlement.ConfirmRefund(ctx, id); err != nil {
					log.Printf("Error confirming refund %s: %s\n", id, err.Error())
				}
			}
		case "transfer.created":
			var tr stripe.Transfer
			if err := json.Unmarshal(event.Data.Raw, &tr); err != nil {
				log.Printf("[Stripe] Error parsing Transfer: %s\n", err.Error())
				break
			}
			if err := settlement.ConfirmTransfer(ctx, tr.ID); err != nil {
				log.Printf("Error confirming transfer %s: %s\n", tr.ID, err.Error())
			}
		case "transfer.reversed":
			var tr stripe.Transfer
			if err := json.Unmarshal(event.Data.Raw, &tr); err != nil {
				log.Printf("[Stripe] Error parsing Transfer: %s\n", err.Error())
				break
			}
			if err := settlement.FailTransfer(ctx, tr.ID, "transfer reversed"); err != nil {
				log.Printf("Error failing transfer %s: %s\n", tr.ID, err.Error())
			}
		default:
			log.Printf("[Stripe] Unhandled event: %s\n", event.Type)
		}
		ctx.Status(http.StatusOK)
	})
	return apiv1
}
