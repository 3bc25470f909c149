package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/actiond/pkg/eventbus"
	"github.com/dukex/actiond/pkg/otelhelper"
	"github.com/dukex/actiond/pkg/persistence"
	"github.com/dukex/actiond/pkg/registry"
	"github.com/dukex/actiond/pkg/services"
	"go.opentelemetry.io/otel/trace"
)

// Options carries everything NewServices needs.
type Options struct {
	DatabaseURL string
	CacheURL    string
	CacheTTL    time.Duration

	Registry RegistryConfig

	ExecutorTimeout time.Duration
	MaxRetryCount   int
	MaxConcurrency  int
	StaleAfter      time.Duration

	// Publisher receives ActionExecutionFinished events; nil disables them.
	Publisher eventbus.EventPublisher
	Tracer    trace.Tracer
}

// Services is the wired service graph shared by the binaries.
type Services struct {
	Persistence persistence.Persistence
	Registry    *registry.Registry
	Definitions *services.ActionDefinition
	Mappings    *services.TriggerMapping
	Executions  *services.ActionExecution
	Triggers    *services.ActionTrigger
}

func NewServices(ctx context.Context, logger *slog.Logger, opts Options) (*Services, error) {
	reg, err := NewRegistry(ctx, logger, opts.Registry)
	if err != nil {
		return nil, err
	}

	store, err := NewPersistence(ctx, logger, opts.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize persistence: %w", err)
	}

	cached, err := WithDefinitionCache(ctx, logger, store, opts.CacheURL, opts.CacheTTL)
	if err != nil {
		_ = store.Close(ctx)

		return nil, err
	}

	definitions := services.NewActionDefinition(cached, logger)
	mappings := services.NewTriggerMapping(cached, logger)
	executions := services.NewActionExecution(cached, reg, logger, services.ExecutionConfig{
		ExecutorTimeout: opts.ExecutorTimeout,
		MaxRetryCount:   opts.MaxRetryCount,
		StaleAfter:      opts.StaleAfter,
		Publisher:       opts.Publisher,
		Tracer:          opts.Tracer,
	})

	return &Services{
		Persistence: cached,
		Registry:    reg,
		Definitions: definitions,
		Mappings:    mappings,
		Executions:  executions,
		Triggers: services.NewActionTrigger(mappings, executions, logger, services.TriggerConfig{
			MaxConcurrency: opts.MaxConcurrency,
			Tracer:         opts.Tracer,
		}),
	}, nil
}

// Close waits for background dispatches, then closes persistence. The store
// is closed even when ctx expires first.
func (s *Services) Close(ctx context.Context) error {
	waitErr := s.Triggers.Wait(ctx)

	if err := s.Persistence.Close(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	if waitErr != nil {
		return fmt.Errorf("background dispatches still running: %w", waitErr)
	}

	return nil
}

// NewTracer returns a no-op tracer unless enabled.
//
// nolint:ireturn
func NewTracer(ctx context.Context, enabled bool, serviceName string) (trace.Tracer, func(context.Context) error, error) {
	if !enabled {
		return otelhelper.NoopTracer(), func(context.Context) error { return nil }, nil
	}

	tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	return tracer, shutdown, nil
}
