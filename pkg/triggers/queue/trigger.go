// Package queue consumes trigger events pushed onto a Redis list.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/triggers"
	redis "github.com/redis/go-redis/v9"
)

const (
	DefaultQueue       = "actiond:triggers"
	deadLetterSuffix   = ":dead"
	defaultPollTimeout = time.Second
	errorBackoff       = time.Second
)

// Consumer pops JSON trigger events from a Redis list. Payloads that do not
// decode are moved to "<queue>:dead" untouched.
type Consumer struct {
	Queue       string
	PollTimeout time.Duration

	client  redis.UniversalClient
	handler triggers.Handler
	logger  *slog.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func NewConsumer(client redis.UniversalClient, queue string, logger *slog.Logger) (*Consumer, error) {
	if client == nil {
		return nil, errors.New("queue consumer needs a redis client")
	}

	if queue == "" {
		queue = DefaultQueue
	}

	return &Consumer{
		Queue:       queue,
		PollTimeout: defaultPollTimeout,
		client:      client,
		stopCh:      make(chan struct{}),
		logger: logger.With(
			"module", "queue_trigger",
			"queue", queue,
		),
	}, nil
}

// DeadLetterQueue is where undecodable payloads end up.
func (c *Consumer) DeadLetterQueue() string {
	return c.Queue + deadLetterSuffix
}

func (c *Consumer) Start(ctx context.Context, handler triggers.Handler) error {
	c.logger.InfoContext(ctx, "Starting queue trigger")
	c.handler = handler

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.wg.Add(1)

	go c.consume(ctx)

	return nil
}

func (c *Consumer) consume(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			c.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			if err := c.processMessage(ctx); err != nil && ctx.Err() == nil {
				c.logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(errorBackoff)
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context) error {
	result, err := c.client.BLPop(ctx, c.PollTimeout, c.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	payload := result[1]

	event, err := triggers.Decode([]byte(payload))
	if err != nil {
		c.logger.WarnContext(ctx, "Dropping invalid trigger event", "error", err)

		if pushErr := c.client.RPush(ctx, c.DeadLetterQueue(), payload).Err(); pushErr != nil {
			return fmt.Errorf("failed to dead-letter message: %w", pushErr)
		}

		return nil
	}

	c.logger.DebugContext(ctx, "Received trigger event",
		"trigger_source_id", event.SourceID, "trigger_event", event.EventType)

	if err := c.handler(ctx, event); err != nil {
		c.logger.ErrorContext(ctx, "Trigger handler failed", "error", err)
	}

	return nil
}

// Publish appends event to the queue.
func (c *Consumer) Publish(ctx context.Context, event models.TriggerEvent) error {
	data, err := triggers.Encode(event)
	if err != nil {
		return err
	}

	if err := c.client.RPush(ctx, c.Queue, data).Err(); err != nil {
		return fmt.Errorf("failed to push trigger event: %w", err)
	}

	return nil
}

// Stop waits for the in-flight message. The client is owned by the caller.
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.InfoContext(ctx, "Stopping queue trigger")

	c.once.Do(func() { close(c.stopCh) })
	c.wg.Wait()

	return nil
}
