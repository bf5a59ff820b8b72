// Package eventbus carries domain.Event values from the Analyzer to the
// Rule Engine. It is a typed, JSON-encoded adaptation of the
// teacher's raw []byte Kafka producer/consumer pair.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/DimaJoyti/priceguard/internal/monitoring/domain"
)

// Publisher publishes an Event onto the bus.
type Publisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// Handler processes one Event consumed off the bus. InMemory returns a
// handler's error to the publisher; KafkaSubscriber logs it and moves on
// to the next message, so the failed message is not redelivered.
type Handler func(ctx context.Context, event *domain.Event) error

// Subscriber drives Handler for every Event published to a topic.
type Subscriber interface {
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}

// Config configures the Kafka-backed bus.
type Config struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	RetryMax      int      `mapstructure:"retry_max"`
}

// DefaultConfig returns single-broker development defaults.
func DefaultConfig() Config {
	return Config{
		Brokers:       []string{"localhost:9092"},
		Topic:         "priceguard.events",
		ConsumerGroup: "priceguard.ruleengine",
		RetryMax:      3,
	}
}

// KafkaPublisher publishes Events as JSON onto cfg.Topic, keyed by
// product id so all events for one product land on the same partition
// and preserve per-product ordering downstream.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewKafkaPublisher dials Brokers and returns a ready Publisher.
func NewKafkaPublisher(cfg Config, logger *zap.Logger) (*KafkaPublisher, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = cfg.RetryMax
	saramaCfg.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("eventbus: dial kafka: %w", err)
	}

	return &KafkaPublisher{producer: producer, topic: cfg.Topic, logger: logger.Named("eventbus")}, nil
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, event *domain.Event) error {
	body, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("eventbus: encode event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.ProductID),
		Value: sarama.ByteEncoder(body),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("eventbus: publish event: %w", err)
	}

	p.logger.Debug("published event",
		zap.String("type", string(event.Type)),
		zap.String("product_id", event.ProductID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Close releases the underlying Kafka connection.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// KafkaSubscriber consumes Events from cfg.Topic as an independent
// consumer (partition-level, not a consumer group, matching the
// teacher's sarama.Consumer usage) and decodes them before calling the
// registered Handler.
type KafkaSubscriber struct {
	consumer sarama.Consumer
	topic    string
	logger   *zap.Logger
}

// NewKafkaSubscriber dials Brokers and returns a ready Subscriber.
func NewKafkaSubscriber(cfg Config, logger *zap.Logger) (*KafkaSubscriber, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest

	consumer, err := sarama.NewConsumer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("eventbus: dial kafka: %w", err)
	}

	return &KafkaSubscriber{consumer: consumer, topic: cfg.Topic, logger: logger.Named("eventbus")}, nil
}

// Subscribe starts one partition consumer goroutine per partition of the
// configured topic and calls handler for every decoded Event.
func (s *KafkaSubscriber) Subscribe(ctx context.Context, handler Handler) error {
	partitions, err := s.consumer.Partitions(s.topic)
	if err != nil {
		return fmt.Errorf("eventbus: list partitions: %w", err)
	}

	for _, partition := range partitions {
		pc, err := s.consumer.ConsumePartition(s.topic, partition, sarama.OffsetNewest)
		if err != nil {
			return fmt.Errorf("eventbus: consume partition %d: %w", partition, err)
		}

		go func(pc sarama.PartitionConsumer) {
			defer pc.Close()
			for {
				select {
				case msg, ok := <-pc.Messages():
					if !ok {
						return
					}
					var event domain.Event
					if err := json.Unmarshal(msg.Value, &event); err != nil {
						s.logger.Error("failed to decode event", zap.Error(err))
						continue
					}
					if err := handler(ctx, &event); err != nil {
						s.logger.Error("handler failed for event",
							zap.String("type", string(event.Type)),
							zap.String("product_id", event.ProductID),
							zap.Error(err))
					}
				case <-ctx.Done():
					return
				}
			}
		}(pc)
	}
	return nil
}

// Close releases the underlying Kafka connection.
func (s *KafkaSubscriber) Close() error {
	return s.consumer.Close()
}
