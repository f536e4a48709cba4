package lib

import (
	"encoding/json"
	"log"
	"rms/src/config"
	"rms/src/types"
)

const TransactionUpdatesTopic = "TransactionUpdates"

// PublishTransactionUpdate pushes a ledger status change onto the update
// stream. Production and test environments use SQS, local uses Kafka.
func PublishTransactionUpdate(source string, payload types.JSONB) error {
	payload["source"] = source
	if config.API_ENV == string(types.Test) || config.API_ENV == string(types.Production) {
		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		cli := AWSGetSQSClient()
		return SQSSendMessage(cli, TransactionUpdatesTopic, string(body))
	}
	if err := KafkaProduceMessage("TransactionUpdatesProducer", TransactionUpdatesTopic, payload); err != nil {
		log.Printf("Error sending message to queue: %s\n", err.Error())
		return err
	}
	return nil
}
