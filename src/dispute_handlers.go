package main

import (
	"net/http"
	"rms/src/settlement"
	"rms/src/types"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func disputeHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/bookings/:id/dispute", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var body types.OpenDisputeRequestBody
			if err := ctx.ShouldBindBodyWithJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			actor := ctx.GetString("email")
			outcome, err := settlement.OpenDispute(ctx, params.ID, body.Reason, actor, ctx.GetHeader(idempotencyHeader))
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": outcome})
		}).
		POST("/bookings/:id/dispute/resolve", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var body types.ResolveDisputeRequestBody
			if err := ctx.ShouldBindBodyWithJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var amount *decimal.Decimal
			if body.Amount != "" {
				parsed, err := decimal.NewFromString(body.Amount)
				if err != nil {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
					return
				}
				amount = &parsed
			}
			outcome, err := settlement.ResolveDispute(ctx, params.ID, body.Outcome, amount, settlement.ActorResolver, ctx.GetHeader(idempotencyHeader))
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": outcome})
		}).
		POST("/bookings/:id/emergency", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var body types.EmergencyOverrideRequestBody
			if err := ctx.ShouldBindBodyWithJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			outcome, err := settlement.EmergencyOverride(ctx, params.ID, body.Action, body.Justification, ctx.GetHeader(idempotencyHeader))
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": outcome})
		})
	return g
}
