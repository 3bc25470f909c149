// Package retry re-runs failed or stale executions and sweeps old ledger rows
// on a cron schedule. It only reads the ledger through the execution service;
// nothing here changes how a single execution is recorded.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/actiond/pkg/metrics"
	"github.com/dukex/actiond/pkg/models"
	"github.com/robfig/cron/v3"
)

const (
	DefaultRetrySchedule     = "@every 1m"
	DefaultRetentionSchedule = "@daily"
	DefaultBatchSize         = 50
)

// Retrier is the slice of the execution service the scheduler drives.
type Retrier interface {
	RetryCandidates(ctx context.Context, limit int) ([]*models.ActionExecution, error)
	Retry(ctx context.Context, executionID string, userID *int64) (*models.ActionExecution, error)
	RetentionSweep(ctx context.Context, retention time.Duration) (int64, error)
}

type Config struct {
	// RetrySchedule is a standard cron expression or descriptor. Empty
	// disables retries.
	RetrySchedule string

	// RetentionSchedule runs the sweep; it is ignored when Retention is zero.
	RetentionSchedule string
	Retention         time.Duration

	BatchSize int
}

// SweepResult reports one retry sweep.
type SweepResult struct {
	Candidates int
	Retried    int
	Failed     int
}

type Scheduler struct {
	retrier Retrier
	config  Config
	logger  *slog.Logger
	cron    *cron.Cron
	cancel  context.CancelFunc
}

func NewScheduler(retrier Retrier, logger *slog.Logger, config Config) (*Scheduler, error) {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}

	if config.Retention > 0 && config.RetentionSchedule == "" {
		config.RetentionSchedule = DefaultRetentionSchedule
	}

	for _, expr := range []string{config.RetrySchedule, config.RetentionSchedule} {
		if expr == "" {
			continue
		}

		if _, err := cron.ParseStandard(expr); err != nil {
			return nil, fmt.Errorf("invalid cron expression '%s': %w", expr, err)
		}
	}

	logger = logger.With("module", "retry_scheduler")

	return &Scheduler{
		retrier: retrier,
		config:  config,
		logger:  logger,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger{logger}),
			cron.Recover(cronLogger{logger}),
		)),
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.config.RetrySchedule != "" {
		if _, err := s.cron.AddFunc(s.config.RetrySchedule, func() {
			if _, err := s.RunRetrySweep(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Retry sweep failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule retry sweep: %w", err)
		}
	}

	if s.config.Retention > 0 {
		if _, err := s.cron.AddFunc(s.config.RetentionSchedule, func() {
			if _, err := s.RunRetentionSweep(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Retention sweep failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule retention sweep: %w", err)
		}
	}

	s.cron.Start()

	s.logger.InfoContext(ctx, "Retry scheduler started",
		"retry_schedule", s.config.RetrySchedule,
		"retention_schedule", s.config.RetentionSchedule,
		"retention", s.config.Retention)

	return nil
}

// Stop stops scheduling and waits for running sweeps, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	select {
	case <-s.cron.Stop().Done():
		s.logger.InfoContext(ctx, "Retry scheduler stopped")

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunRetrySweep retries one batch of candidates. A candidate that cannot be
// retried is counted and skipped; the sweep goes on.
func (s *Scheduler) RunRetrySweep(ctx context.Context) (SweepResult, error) {
	candidates, err := s.retrier.RetryCandidates(ctx, s.config.BatchSize)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Candidates: len(candidates)}

	for _, candidate := range candidates {
		if ctx.Err() != nil {
			break
		}

		execution, err := s.retrier.Retry(ctx, candidate.ExecutionID, nil)
		if err != nil {
			result.Failed++

			s.logger.WarnContext(ctx, "Could not retry execution",
				"execution_id", candidate.ExecutionID, "error", err)

			continue
		}

		result.Retried++

		s.logger.InfoContext(ctx, "Execution retried",
			"execution_id", candidate.ExecutionID,
			"retry_execution_id", execution.ExecutionID,
			"status", execution.Status)
	}

	metrics.RecordRetry("retried", result.Retried)

	if result.Candidates > 0 {
		s.logger.InfoContext(ctx, "Retry sweep finished",
			"candidates", result.Candidates, "retried", result.Retried, "failed", result.Failed)
	}

	return result, ctx.Err()
}

func (s *Scheduler) RunRetentionSweep(ctx context.Context) (int64, error) {
	swept, err := s.retrier.RetentionSweep(ctx, s.config.Retention)
	if err != nil {
		return 0, err
	}

	metrics.RecordRetry("swept", int(swept))

	s.logger.InfoContext(ctx, "Retention sweep finished", "swept", swept, "retention", s.config.Retention)

	return swept, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
