package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the subset of *kgo.Client used by KafkaSink.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaSink publishes events as JSON records, one topic per category. The
// record key is the user id so a user's events stay ordered in a partition.
type KafkaSink struct {
	producer    Producer
	topicPrefix string
}

func NewKafkaSink(producer Producer, topicPrefix string) *KafkaSink {
	return &KafkaSink{producer: producer, topicPrefix: topicPrefix}
}

// NewKafkaClient builds a franz-go client for the given seed brokers.
func NewKafkaClient(brokers []string, clientID string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// Topic returns the topic that receives events of category c.
func (s *KafkaSink) Topic(c EventCategory) string {
	return s.topicPrefix + "." + string(c)
}

func (s *KafkaSink) Append(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.Topic(e.Category),
		Key:   []byte(e.UserID),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(e.Action)},
		},
	}
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}
