package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

type InvalidationConfig struct {
	Enabled bool

	Brokers []string
	Topic   string
	GroupID string

	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
	// FromOldest replays the retained topic on first join; otherwise only
	// new events are consumed.
	FromOldest bool
	// RetryBackoff spaces re-joins after a consume error.
	RetryBackoff time.Duration

	// DedupeSize bounds the per-key version memory.
	DedupeSize int
}

func DefaultConfig(brokers []string, topic, group string) InvalidationConfig {
	return InvalidationConfig{
		Enabled:          true,
		Brokers:          brokers,
		Topic:            topic,
		GroupID:          group,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		RetryBackoff:     2 * time.Second,
		DedupeSize:       8192,
	}
}

func (c InvalidationConfig) sarama() *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_5_0_0
	sc.ClientID = "api-dados-rio"
	sc.Consumer.Group.Session.Timeout = c.SessionTimeout
	sc.Consumer.Group.Heartbeat.Interval = c.Heartbeat
	sc.Consumer.Group.Rebalance.Timeout = c.RebalanceTimeout
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	if c.FromOldest {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	sc.Consumer.Return.Errors = true
	return sc
}
