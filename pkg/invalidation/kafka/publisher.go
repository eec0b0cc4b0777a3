package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/prefeitura-rio/api-dados-rio/internal/invalidation"
)

// Publisher sends invalidation events. It waits for the broker ack so an
// operator knows the event was accepted.
type Publisher struct {
	topic string
	prod  sarama.SyncProducer
}

func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka publisher: brokers and topic are required")
	}
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll

	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher: create producer: %w", err)
	}
	return newPublisher(prod, topic), nil
}

func newPublisher(prod sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{topic: topic, prod: prod}
}

// Publish validates ev and sends it. Events for the same resource share a
// message key so they stay ordered within one partition.
func (p *Publisher) Publish(ctx context.Context, ev invalidation.Event) (partition int32, offset int64, err error) {
	if err := ev.Validate(); err != nil {
		return 0, 0, fmt.Errorf("invalid event: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return 0, 0, fmt.Errorf("marshal event: %w", err)
	}
	msg := &sarama.ProducerMessage{Topic: p.topic, Value: sarama.ByteEncoder(b)}
	if k := messageKey(ev); k != "" {
		msg.Key = sarama.StringEncoder(k)
	}
	partition, offset, err = p.prod.SendMessage(msg)
	if err != nil {
		return 0, 0, fmt.Errorf("send invalidation: %w", err)
	}
	return partition, offset, nil
}

func messageKey(ev invalidation.Event) string {
	if ev.Op == invalidation.OpDeleteDays {
		return ev.Resource
	}
	if len(ev.Keys) == 1 {
		return ev.Keys[0]
	}
	return ""
}

func (p *Publisher) Close() error {
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("kafka publisher: close producer: %w", err)
	}
	return nil
}
