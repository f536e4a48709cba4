package main

import (
	"net/http"
	"rms/src/config"
	"rms/src/db"
	"rms/src/models"
	"rms/src/settlement"
	"rms/src/types"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func payoutHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/payouts", func(ctx *gin.Context) {
			uid := ctx.GetUint("id")
			db := db.GetDb()
			var payouts []models.Payout
			err := db.
				Model(&models.Payout{}).
				Where(&models.Payout{HostID: uid}).
				Order("created_at desc").
				Limit(100).
				Find(&payouts).
				Error
			if err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": payouts, "count": len(payouts)})
		}).
		GET("/payouts/:id", func(ctx *gin.Context) {
			var params types.PayoutRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			db := db.GetDb()
			var payout models.Payout
			if err := db.
				Model(&models.Payout{}).
				Where("id = ?", params.ID).
				Preload("Transactions").
				First(&payout).
				Error; err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": payout})
		}).
		POST("/payouts", func(ctx *gin.Context) {
			var body types.BuildPayoutRequestBody
			if err := ctx.ShouldBindBodyWithJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			asOf := time.Now().UTC()
			if body.AsOf != nil {
				parsed, err := time.Parse(config.TIME_PARSE_FORMAT, *body.AsOf)
				if err != nil {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
					return
				}
				asOf = parsed
			}
			payout, err := settlement.BuildPayout(ctx, body.HostID, body.Method, asOf, ctx.GetHeader(idempotencyHeader))
			if err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": payout})
		}).
		POST("/payouts/:id/process", func(ctx *gin.Context) {
			var params types.PayoutRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			id := uuid.MustParse(params.ID)
			if err := settlement.ProcessPayout(ctx, id); err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.Status(http.StatusAccepted)
		}).
		POST("/payouts/:id/retry", func(ctx *gin.Context) {
			var params types.PayoutRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			id := uuid.MustParse(params.ID)
			if err := settlement.RetryPayout(ctx, id); err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.Status(http.StatusAccepted)
		}).
		POST("/payouts/:id/cancel", func(ctx *gin.Context) {
			var params types.PayoutRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			id := uuid.MustParse(params.ID)
			if err := settlement.CancelPayout(ctx, id); err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.Status(http.StatusOK)
		})
	return g
}
