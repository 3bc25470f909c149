// Package kafka consumes trigger events from a plain Kafka topic, for
// producers that do not publish through the event bus.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/dukex/actiond/pkg/triggers"
)

const (
	DefaultTopic         = "actiond.triggers"
	DefaultConsumerGroup = "actiond-triggers"
)

const kafkaSessionTimeout = 10 * time.Second
const kafkaHeartbeatInterval = 3 * time.Second
const kafkaRetryInterval = 5 * time.Second

type Consumer struct {
	Topic         string
	ConsumerGroup string
	Brokers       []string

	consumer sarama.ConsumerGroup
	handler  triggers.Handler
	logger   *slog.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewConsumer(brokers []string, topic, consumerGroup string, logger *slog.Logger) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka trigger brokers are required")
	}

	if topic == "" {
		topic = DefaultTopic
	}

	if consumerGroup == "" {
		consumerGroup = DefaultConsumerGroup
	}

	return &Consumer{
		Topic:         topic,
		ConsumerGroup: consumerGroup,
		Brokers:       brokers,
		logger: logger.With(
			"module", "kafka_trigger",
			"topic", topic,
			"consumer_group", consumerGroup,
		),
	}, nil
}

func newSaramaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Consumer.Group.Session.Timeout = kafkaSessionTimeout
	config.Consumer.Group.Heartbeat.Interval = kafkaHeartbeatInterval
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	return config
}

func (c *Consumer) Start(ctx context.Context, handler triggers.Handler) error {
	c.logger.InfoContext(ctx, "Starting Kafka trigger", "brokers", c.Brokers)
	c.handler = handler

	consumer, err := sarama.NewConsumerGroup(c.Brokers, c.ConsumerGroup, newSaramaConfig())
	if err != nil {
		return fmt.Errorf("failed to create Kafka consumer group: %w", err)
	}

	c.consumer = consumer

	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(2)

	go c.consuming(ctx)
	go c.monitorConsumerErrors(ctx)

	return nil
}

func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.InfoContext(ctx, "Stopping Kafka trigger")

	if c.cancel == nil {
		return nil
	}

	c.cancel()
	c.wg.Wait()

	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka consumer: %w", err)
	}

	return nil
}

func (c *Consumer) consuming(ctx context.Context) {
	defer c.wg.Done()

	handler := &consumerGroupHandler{consumer: c}

	for {
		err := c.consumer.Consume(ctx, []string{c.Topic}, handler)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			c.logger.ErrorContext(ctx, "Kafka consumer error", "error", err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(kafkaRetryInterval):
			}
		}
	}
}

func (c *Consumer) monitorConsumerErrors(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case err, ok := <-c.consumer.Errors():
			if !ok {
				return
			}

			c.logger.ErrorContext(ctx, "Kafka consumer group error", "error", err)
		case <-ctx.Done():
			return
		}
	}
}

type consumerGroupHandler struct {
	consumer *Consumer
}

func (h *consumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.consumer.logger.InfoContext(session.Context(), "Kafka consumer group session started")

	return nil
}

func (h *consumerGroupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.consumer.logger.InfoContext(session.Context(), "Kafka consumer group session ended")

	return nil
}

// ConsumeClaim marks every message, decodable or not: a poison message must
// not block the partition.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	logger := h.consumer.logger

	for message := range claim.Messages() {
		logger.DebugContext(ctx, "Received Kafka message",
			"partition", message.Partition,
			"offset", message.Offset,
		)

		event, err := triggers.Decode(message.Value)
		if err != nil {
			logger.WarnContext(ctx, "Dropping invalid trigger event",
				"partition", message.Partition, "offset", message.Offset, "error", err)
		} else if err := h.consumer.handler(ctx, event); err != nil {
			logger.ErrorContext(ctx, "Trigger handler failed", "error", err)
		}

		session.MarkMessage(message, "")
	}

	return nil
}
