package main

import (
	"net/http"
	"rms/src/db"
	"rms/src/models"
	"rms/src/types"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func transactionHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/transactions", func(ctx *gin.Context) {
			uid := ctx.GetUint("id")
			db := db.GetDb()
			var txns []models.Transaction
			err := db.
				Model(&models.Transaction{}).
				Where(&models.Transaction{HostID: uid}).
				Order("created_at desc").
				Limit(100).
				Find(&txns).
				Error
			if err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": txns, "count": len(txns)})
		}).
		GET("/transactions/:id", func(ctx *gin.Context) {
			var params types.PayoutRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			db := db.GetDb()
			var txn models.Transaction
			if err := db.
				Model(&models.Transaction{}).
				Where("id = ?", params.ID).
				First(&txn).
				Error; err != nil {
				abortWithError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": txn})
		}).
		GET("/balance", func(ctx *gin.Context) {
			uid := ctx.GetUint("id")
			db := db.GetDb()
			var txns []models.Transaction
			err := db.
				Model(&models.Transaction{}).
				Where(&models.Transaction{HostID: uid, Type: types.TXN_HOST_PAYOUT, Status: types.TRANSACTION_COMPLETED}).
				Where("payout_id IS NULL AND frozen = false").
				Find(&txns).
				Error
			if err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			balance := decimal.Zero
			currency := ""
			for _, t := range txns {
				balance = balance.Add(t.Amount.Abs())
				currency = t.Currency
			}
			ctx.JSON(http.StatusOK, gin.H{"data": gin.H{
				"balance":  balance.String(),
				"currency": currency,
				"credits":  len(txns),
			}})
		})
	return g
}
