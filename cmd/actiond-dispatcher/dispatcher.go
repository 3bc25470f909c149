package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/actiond/pkg/eventbus"
	"github.com/dukex/actiond/pkg/events"
	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/retry"
	"github.com/dukex/actiond/pkg/services"
	"github.com/dukex/actiond/pkg/triggers"
)

const stopTimeout = 30 * time.Second

// TriggerRunner is the part of the trigger service the dispatcher drives.
type TriggerRunner interface {
	ExecuteActionsForTrigger(ctx context.Context, event models.TriggerEvent) (*services.DispatchSummary, error)
	Fire(ctx context.Context, event models.TriggerEvent)
	Wait(ctx context.Context) error
}

// Dispatcher consumes TriggerFired events from the bus and from the optional
// intakes, and runs the retry scheduler.
type Dispatcher struct {
	id        string
	triggers  TriggerRunner
	eventBus  eventbus.EventSubscriber
	intakes   []triggers.Intake
	scheduler *retry.Scheduler
	logger    *slog.Logger
}

func NewDispatcher(
	id string,
	runner TriggerRunner,
	eventBus eventbus.EventSubscriber,
	scheduler *retry.Scheduler,
	logger *slog.Logger,
	intakes ...triggers.Intake,
) *Dispatcher {
	return &Dispatcher{
		id:        id,
		triggers:  runner,
		eventBus:  eventBus,
		intakes:   intakes,
		scheduler: scheduler,
		logger:    logger.With("module", "actiond-dispatcher", "dispatcher_id", id),
	}
}

// Run blocks until ctx is cancelled, then stops the intakes and the
// scheduler and drains in-flight dispatches.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	d.logger.InfoContext(ctx, "Shutting down gracefully...")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()

	return d.Stop(stopCtx)
}

func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.InfoContext(ctx, "Starting dispatcher", "intakes", len(d.intakes), "retry_scheduler", d.scheduler != nil)

	if err := d.eventBus.Handle(events.TriggerFiredEvent, d.handleTriggerFired); err != nil {
		return fmt.Errorf("failed to register trigger handler: %w", err)
	}

	if err := d.eventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	for _, intake := range d.intakes {
		if err := intake.Start(ctx, d.fire); err != nil {
			return fmt.Errorf("failed to start trigger intake: %w", err)
		}
	}

	if d.scheduler != nil {
		if err := d.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (d *Dispatcher) Stop(ctx context.Context) error {
	var errs []error

	for _, intake := range d.intakes {
		if err := intake.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if d.scheduler != nil {
		if err := d.scheduler.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := d.triggers.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("in-flight dispatches: %w", err))
	}

	d.logger.InfoContext(ctx, "Dispatcher stopped")

	return errors.Join(errs...)
}

// handleTriggerFired dispatches synchronously so the bus message is only
// acked once every mapped action has a ledger row. Only a resolution failure
// is returned, which redelivers the message.
func (d *Dispatcher) handleTriggerFired(ctx context.Context, event any) error {
	fired, ok := event.(*events.TriggerFired)
	if !ok {
		d.logger.ErrorContext(ctx, "Unexpected event payload", "type", fmt.Sprintf("%T", event))

		return nil
	}

	summary, err := d.triggers.ExecuteActionsForTrigger(ctx, fired.Event)
	if err != nil {
		return err
	}

	d.logger.DebugContext(ctx, "Trigger dispatched",
		"event_id", fired.ID,
		"matched", summary.Matched,
		"executed", summary.Executed,
		"failed", summary.Failed,
		"skipped", summary.Skipped)

	return nil
}

func (d *Dispatcher) fire(ctx context.Context, event models.TriggerEvent) error {
	d.triggers.Fire(ctx, event)

	return nil
}
