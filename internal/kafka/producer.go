package kafka

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"

	"pharmago/internal/audit"
)

// Producer publishes order lifecycle events to one topic, keyed by order id
// so every event of an order lands on the same partition, in order. Sends
// are synchronous: the outbox deletes a task only after the broker acked it.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewProducer(brokers []string, topic string) (*Producer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Timeout = 5 * time.Second
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return &Producer{producer: prod, topic: topic}, nil
}

// PublishRecord owns the wire encoding; callers hand over the record and
// never touch JSON themselves.
func (p *Producer) PublishRecord(rec audit.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode order event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(rec.OrderID),
		Value: sarama.ByteEncoder(payload),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	log.Printf("kafka: order %s event at %s/%d@%d", rec.OrderID, p.topic, partition, offset)
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
