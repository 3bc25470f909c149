package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/actiond/pkg/channels/kafka"
	"github.com/dukex/actiond/pkg/cmd"
	"github.com/dukex/actiond/pkg/log"
	"github.com/dukex/actiond/pkg/persistence/cache"
	"github.com/dukex/actiond/pkg/retry"
	"github.com/dukex/actiond/pkg/triggers"
	kafkatrigger "github.com/dukex/actiond/pkg/triggers/kafka"
	"github.com/dukex/actiond/pkg/triggers/queue"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "actiond-dispatcher",
		Usage:                 "Run the actions mapped to fired triggers and retry failed executions",
		EnableShellCompletion: true,
		Flags: append(cmd.CommonFlags(),
			&cli.StringFlag{
				Name:    "dispatcher-id",
				Aliases: []string{"id"},
				Usage:   "Custom dispatcher ID (auto-generated if not provided)",
				Sources: cli.EnvVars("DISPATCHER_ID"),
			},
			&cli.StringFlag{
				Name:    "consumer-group",
				Usage:   "Event bus consumer group shared by dispatcher replicas",
				Value:   "actiond-dispatcher",
				Sources: cli.EnvVars("CONSUMER_GROUP"),
			},
			&cli.StringFlag{
				Name:    "queue-url",
				Usage:   "Redis URL of the trigger queue intake (disabled when empty)",
				Sources: cli.EnvVars("QUEUE_URL"),
			},
			&cli.StringFlag{
				Name:    "queue-name",
				Usage:   "Redis list the queue intake pops from",
				Value:   queue.DefaultQueue,
				Sources: cli.EnvVars("QUEUE_NAME"),
			},
			&cli.StringFlag{
				Name:    "kafka-trigger-topic",
				Usage:   "Kafka topic carrying raw trigger events (disabled when empty)",
				Sources: cli.EnvVars("KAFKA_TRIGGER_TOPIC"),
			},
			&cli.StringFlag{
				Name:    "retry-schedule",
				Usage:   "Cron expression for the retry sweep (empty disables automatic retries)",
				Value:   retry.DefaultRetrySchedule,
				Sources: cli.EnvVars("RETRY_SCHEDULE"),
			},
			&cli.IntFlag{
				Name:    "retry-batch-size",
				Usage:   "Failed executions retried per sweep",
				Value:   retry.DefaultBatchSize,
				Sources: cli.EnvVars("RETRY_BATCH_SIZE"),
			},
			&cli.DurationFlag{
				Name:    "retention",
				Usage:   "Drop execution history older than this (0 keeps everything)",
				Sources: cli.EnvVars("EXECUTION_RETENTION"),
			},
			&cli.StringFlag{
				Name:    "retention-schedule",
				Usage:   "Cron expression for the retention sweep",
				Value:   retry.DefaultRetentionSchedule,
				Sources: cli.EnvVars("RETENTION_SCHEDULE"),
			},
		),
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.SetupWriter(os.Stderr, command.String("log-level"), command.String("log-format"))

	dispatcherID := command.String("dispatcher-id")
	if dispatcherID == "" {
		dispatcherID = fmt.Sprintf("dispatcher-%s", uuid.New().String()[:8])
	}

	logger := log.WithModule("actiond-dispatcher").With("dispatcher_id", dispatcherID)
	logger.InfoContext(ctx, "Initializing actiond dispatcher")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, shutdownTracer, err := cmd.NewTracer(ctx, command.Bool("tracing"), "actiond-dispatcher")
	if err != nil {
		return err
	}

	defer func() {
		if err := shutdownTracer(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"),
		command.String("consumer-group"), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	opts := cmd.OptionsFromCommand(command)
	opts.Publisher = eventBus
	opts.Tracer = tracer

	services, err := cmd.NewServices(ctx, logger, opts)
	if err != nil {
		return err
	}

	defer func() {
		if err := services.Persistence.Close(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	scheduler, err := retry.NewScheduler(services.Executions, logger, retry.Config{
		RetrySchedule:     command.String("retry-schedule"),
		RetentionSchedule: command.String("retention-schedule"),
		Retention:         command.Duration("retention"),
		BatchSize:         int(command.Int("retry-batch-size")),
	})
	if err != nil {
		return err
	}

	intakes, queueClient, err := newIntakes(command, logger)
	if queueClient != nil {
		defer func() {
			if err := queueClient.Close(); err != nil {
				logger.ErrorContext(ctx, "Failed to close queue client", "error", err)
			}
		}()
	}

	if err != nil {
		return err
	}

	return NewDispatcher(dispatcherID, services.Triggers, eventBus, scheduler, logger, intakes...).Run(ctx)
}

// newIntakes builds the Redis queue and Kafka topic intakes that are
// configured. The returned redis client, if any, is closed by the caller.
func newIntakes(command *cli.Command, logger *slog.Logger) ([]triggers.Intake, io.Closer, error) {
	var (
		intakes []triggers.Intake
		client  redis.UniversalClient
	)

	if url := command.String("queue-url"); url != "" {
		var err error

		client, err = cache.NewClient(url)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create queue client: %w", err)
		}

		consumer, err := queue.NewConsumer(client, command.String("queue-name"), logger)
		if err != nil {
			return nil, client, err
		}

		intakes = append(intakes, consumer)
	}

	if topic := command.String("kafka-trigger-topic"); topic != "" {
		consumer, err := kafkatrigger.NewConsumer(kafka.ParseBrokers(command.String("kafka-brokers")),
			topic, command.String("consumer-group"), logger)
		if err != nil {
			return nil, client, err
		}

		intakes = append(intakes, consumer)
	}

	return intakes, client, nil
}
