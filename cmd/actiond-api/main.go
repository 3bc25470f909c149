package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/actiond/pkg/cmd"
	"github.com/dukex/actiond/pkg/eventbus"
	"github.com/dukex/actiond/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "actiond-api",
		Usage:                 "Manage action definitions and trigger mappings, and fire triggers over HTTP",
		EnableShellCompletion: true,
		Flags: append(cmd.CommonFlags(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "dispatch-mode",
				Usage:   "Where fired triggers run: local (this process) or bus (actiond-dispatcher)",
				Value:   "local",
				Sources: cli.EnvVars("DISPATCH_MODE"),
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

	logger := log.WithModule("actiond-api")
	logger.InfoContext(ctx, "Initializing actiond API")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, shutdownTracer, err := cmd.NewTracer(ctx, command.Bool("tracing"), "actiond-api")
	if err != nil {
		return err
	}

	defer func() {
		if err := shutdownTracer(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "actiond-api", logger)
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
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := services.Close(closeCtx); err != nil {
			logger.ErrorContext(ctx, "Failed to close services", "error", err)
		}
	}()

	var firePublisher eventbus.EventPublisher

	switch mode := command.String("dispatch-mode"); mode {
	case "local":
	case "bus":
		firePublisher = eventBus
	default:
		return fmt.Errorf("unknown dispatch mode %q", mode)
	}

	return NewAPI(logger, services, firePublisher).Start(ctx, int(command.Int("port")))
}
