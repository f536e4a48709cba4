package boot

import (
	"context"
	"fmt"
	"log"
	"rms/src/config"
	"rms/src/db"
	"rms/src/lib"
	"rms/src/models"
	"rms/src/settlement"
	"rms/src/types"
	"time"

	"gorm.io/gorm"

	sqsconsumer "rms/src/lib/aws"

	"github.com/tidwall/gjson"
)

func InitDb() *gorm.DB {
	db := db.GetDb()

	err := db.AutoMigrate(
		&models.User{},
		&models.Booking{},
		&models.Transaction{},
		&models.Payout{},
		&models.IdempotencyKey{},
		&models.TrailLog{},
		&models.JobTask{},
		&models.Setting{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	return db
}

func InitScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return
	}

	if id, err := lib.CreateCronJob(settlement.RunPayoutBatch, config.PayoutBatchInterval()); err != nil {
		log.Printf("Error scheduling payout batch: %s\n", err.Error())
	} else {
		log.Printf("Payout batch scheduled: %s\n", *id)
	}
	if id, err := lib.CreateCronJob(settlement.ReconcileStuckTransactions, config.ReconcileInterval()); err != nil {
		log.Printf("Error scheduling transaction reconciliation: %s\n", err.Error())
	} else {
		log.Printf("Transaction reconciliation scheduled: %s\n", *id)
	}
	if id, err := lib.CreateCronJob(settlement.ReconcileStuckPayouts, config.ReconcileInterval()); err != nil {
		log.Printf("Error scheduling payout reconciliation: %s\n", err.Error())
	} else {
		log.Printf("Payout reconciliation scheduled: %s\n", *id)
	}

	sched.Start()
	log.Println("Jobs in queue:", len(sched.Jobs()))
}

func StopScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		return
	}
	if err := sched.Shutdown(); err != nil {
		log.Printf("Error shutting down scheduler: %s\n", err.Error())
	}
}

// InitBroker starts the TransactionUpdates consumer. Test and production
// pull from SQS, local from Kafka.
func InitBroker() {
	if config.API_ENV == string(types.Test) || config.API_ENV == string(types.Production) {
		consumer := sqsconsumer.NewSQSConsumer(lib.TransactionUpdatesTopic, handleTransactionUpdate)
		go consumer.Listen()
		return
	}
	go func() {
		if _, err := lib.KafkaCreateTopics(lib.TransactionUpdatesTopic); err != nil {
			log.Printf("Error creating topics: %s\n", err.Error())
		}
		lib.KafkaConsumer("settlement", []string{lib.TransactionUpdatesTopic}, func(value []byte) {
			handleTransactionUpdate(string(value))
		})
	}()
}

// handleTransactionUpdate mirrors the latest status of each booking into
// redis so status reads do not hit the database.
func handleTransactionUpdate(payload string) {
	source := gjson.Get(payload, "source").String()
	bookingID := gjson.Get(payload, "booking_id").Uint()
	status := gjson.Get(payload, "status").String()
	log.Printf("[broker] %s: booking=%d status=%s\n", source, bookingID, status)
	if bookingID == 0 || status == "" {
		return
	}
	rdb := lib.GetRedisClient()
	if rdb == nil {
		return
	}
	key := fmt.Sprintf("booking:%d:status", bookingID)
	if err := rdb.Set(context.Background(), key, status, 24*time.Hour).Err(); err != nil {
		log.Printf("[redis] Failed caching booking status: %s\n", err.Error())
	}
}
