package kafka

import (
	"context"
	"encoding/json"
	"log"

	"github.com/IBM/sarama"

	"pharmago/internal/audit"
)

// consumerGroupHandler replays the audit stream into the service log. It
// doubles as a smoke check that the outbox pipeline produces well-formed
// events.
type consumerGroupHandler struct{}

func (consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var rec audit.Record
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			log.Printf("kafka: malformed event at %s/%d/%d: %v", msg.Topic, msg.Partition, msg.Offset, err)
		} else {
			log.Printf("kafka: consumed event order=%s %s -> %s (%s)", rec.OrderID, rec.OldStatus, rec.NewStatus, rec.Message)
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

// StartConsumer runs the audit-topic consumer group until ctx is cancelled.
func StartConsumer(ctx context.Context, brokers []string, groupID string, topics []string) {
	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, sarama.NewConfig())
	if err != nil {
		log.Printf("kafka: error creating consumer group: %v", err)
		return
	}
	defer func() {
		if err := consumerGroup.Close(); err != nil {
			log.Printf("kafka: error closing consumer group: %v", err)
		}
	}()

	handler := consumerGroupHandler{}
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := consumerGroup.Consume(ctx, topics, handler); err != nil {
				log.Printf("kafka: consume error: %v", err)
			}
		}
	}
}
