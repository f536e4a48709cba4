package main

import (
	"errors"
	"log"
	"net/http"
	"rms/src/db"
	"rms/src/models"
	"rms/src/settlement"
	"rms/src/types"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const idempotencyHeader = "Idempotency-Key"

func statusForError(err error) int {
	switch {
	case errors.Is(err, settlement.ErrGatewayTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, settlement.ErrGatewayRejected):
		return http.StatusPaymentRequired
	case errors.Is(err, settlement.ErrConcurrentModification),
		errors.Is(err, settlement.ErrDisputeAlreadyOpen),
		errors.Is(err, settlement.ErrInsufficientPayoutBalance):
		return http.StatusConflict
	case errors.Is(err, settlement.ErrInvalidTransition),
		errors.Is(err, settlement.ErrInvalidRateConfig),
		errors.Is(err, settlement.ErrRefundExceedsPaid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(ctx *gin.Context, err error) {
	log.Print(err.Error())
	ctx.JSON(statusForError(err), gin.H{"error": err.Error()})
}

func bookingHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/bookings", func(ctx *gin.Context) {
			uid := ctx.GetUint("id")
			db := db.GetDb()
			var bookings []models.Booking
			err := db.
				Model(&models.Booking{}).
				Where("guest_id = ? OR host_id = ?", uid, uid).
				Order("created_at desc").
				Limit(100).
				Find(&bookings).
				Error
			if err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": bookings, "count": len(bookings)})
		}).
		GET("/bookings/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			db := db.GetDb()
			var booking models.Booking
			if err := db.
				Model(&models.Booking{}).
				Where(&models.Booking{ID: params.ID}).
				Preload("Host").
				Preload("Guest").
				First(&booking).
				Error; err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": booking})
		}).
		POST("/bookings/:id/transition", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var body types.TransitionRequestBody
			if err := ctx.ShouldBindBodyWithJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			actor := ctx.GetString("email")
			outcome, err := settlement.Transition(ctx, params.ID, body.Status, body.Reason, actor, ctx.GetHeader(idempotencyHeader))
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": outcome})
		}).
		POST("/bookings/:id/cancel", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var body types.RefundRequestBody
			if err := ctx.ShouldBindBodyWithJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			actor := ctx.GetString("email")
			outcome, err := settlement.Transition(ctx, params.ID, types.BOOKING_CANCELED, body.Reason, actor, ctx.GetHeader(idempotencyHeader))
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": outcome})
		}).
		GET("/bookings/:id/refund", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var requested *decimal.Decimal
			if raw, ok := ctx.GetQuery("amount"); ok {
				amount, err := decimal.NewFromString(raw)
				if err != nil {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
					return
				}
				requested = &amount
			}
			refund, err := settlement.ComputeRefund(ctx, params.ID, requested)
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": gin.H{
				"amount":   refund.Amount.String(),
				"currency": refund.Currency,
			}})
		}).
		GET("/bookings/:id/transactions", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			db := db.GetDb()
			var txns []models.Transaction
			err := db.
				Model(&models.Transaction{}).
				Where(&models.Transaction{BookingID: params.ID}).
				Order("created_at asc").
				Find(&txns).
				Error
			if err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": txns, "count": len(txns)})
		})
	return g
}
