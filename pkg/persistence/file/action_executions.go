package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/persistence"
)

type ActionExecutionRepository struct {
	p *Persistence
}

func (r *ActionExecutionRepository) find(executionID string) *models.ActionExecution {
	for _, e := range r.p.executions.Items {
		if e.ExecutionID == executionID {
			return e
		}
	}

	return nil
}

func (r *ActionExecutionRepository) Create(_ context.Context, execution *models.ActionExecution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if execution.ExecutionID == "" {
		return persistence.NewExecutionError("Create", "", fmt.Errorf("execution id is required"))
	}

	if r.find(execution.ExecutionID) != nil {
		return persistence.NewExecutionError("Create", execution.ExecutionID, fmt.Errorf("execution id already used"))
	}

	now := r.p.now()

	stored := clone(execution)
	stored.ID = r.p.executions.nextID()
	stored.IsValid = true
	stored.CreatedAt = now

	if stored.StartedAt.IsZero() {
		stored.StartedAt = now
	}

	r.p.executions.Items = append(r.p.executions.Items, stored)

	if err := save(r.p.path(executionsFile), &r.p.executions); err != nil {
		r.p.executions.Items = r.p.executions.Items[:len(r.p.executions.Items)-1]

		return err
	}

	*execution = *clone(stored)

	return nil
}

func (r *ActionExecutionRepository) Finalize(_ context.Context, executionID string, outcome models.ExecutionOutcome) (*models.ActionExecution, error) {
	if !outcome.Status.IsTerminal() {
		return nil, persistence.NewExecutionError("Finalize", executionID, fmt.Errorf("status %s is not terminal", outcome.Status))
	}

	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	stored := r.find(executionID)
	if stored == nil || !stored.IsValid {
		return nil, persistence.NewExecutionError("Finalize", executionID, persistence.ErrExecutionNotFound)
	}

	if !stored.Status.CanTransitionTo(outcome.Status) {
		return nil, persistence.NewExecutionError("Finalize", executionID, persistence.ErrExecutionAlreadyFinalized)
	}

	previous := *stored

	completedAt := outcome.CompletedAt
	if completedAt.IsZero() {
		completedAt = r.p.now()
	}

	stored.Status = outcome.Status
	stored.CompletedAt = &completedAt
	stored.DurationMs = outcome.DurationMs
	stored.Result = outcome.Result
	stored.ErrorMessage = outcome.ErrorMessage

	if err := save(r.p.path(executionsFile), &r.p.executions); err != nil {
		*stored = previous

		return nil, err
	}

	return clone(stored), nil
}

func (r *ActionExecutionRepository) GetByExecutionID(_ context.Context, executionID string) (*models.ActionExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	stored := r.find(executionID)
	if stored == nil || !stored.IsValid {
		return nil, persistence.NewExecutionError("GetByExecutionID", executionID, persistence.ErrExecutionNotFound)
	}

	return clone(stored), nil
}

func (r *ActionExecutionRepository) List(_ context.Context, query persistence.ExecutionQuery) (*persistence.ExecutionPage, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var matched []*models.ActionExecution

	for _, e := range r.p.executions.Items {
		if !e.IsValid {
			continue
		}

		if query.ActionDefinitionID != 0 && e.ActionDefinitionID != query.ActionDefinitionID {
			continue
		}

		if query.Status != "" && e.Status != query.Status {
			continue
		}

		if query.TriggerSourceType != "" && e.TriggerSourceType != query.TriggerSourceType {
			continue
		}

		if query.TriggerSourceID != 0 && e.TriggerSourceID != query.TriggerSourceID {
			continue
		}

		if query.RetryOf != "" && e.RetryOf != query.RetryOf {
			continue
		}

		if query.Since != nil && e.StartedAt.Before(*query.Since) {
			continue
		}

		if query.ExcludeTests && e.IsTest {
			continue
		}

		matched = append(matched, e)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].StartedAt.Equal(matched[j].StartedAt) {
			return matched[i].StartedAt.After(matched[j].StartedAt)
		}

		return matched[i].ID > matched[j].ID
	})

	limit, offset := persistence.NormalizePage(query.Limit, query.Offset)

	return &persistence.ExecutionPage{
		Items:  page(matched, limit, offset),
		Total:  int64(len(matched)),
		Limit:  limit,
		Offset: offset,
	}, nil
}

func (r *ActionExecutionRepository) Stats(_ context.Context, since time.Time) (*models.ExecutionStats, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	stats := &models.ExecutionStats{Since: since, ByStatus: map[models.ExecutionStatus]int64{}}

	var (
		totalDuration int64
		completed     int64
	)

	for _, e := range r.p.executions.Items {
		if !e.IsValid || e.IsTest || e.StartedAt.Before(since) {
			continue
		}

		stats.Total++
		stats.ByStatus[e.Status]++

		if e.CompletedAt != nil {
			totalDuration += e.DurationMs
			completed++
		}
	}

	if completed > 0 {
		stats.AverageDurationMs = float64(totalDuration) / float64(completed)
	}

	return stats, nil
}

func (r *ActionExecutionRepository) RetryCandidates(_ context.Context, maxRetry int, staleBefore time.Time, limit int) ([]*models.ActionExecution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	retried := make(map[string]bool)
	for _, e := range r.p.executions.Items {
		if e.IsValid && e.RetryOf != "" {
			retried[e.RetryOf] = true
		}
	}

	runnable := make(map[int64]bool)
	for _, d := range r.p.definitions.Items {
		if d.IsValid && d.IsEnabled {
			runnable[d.ID] = true
		}
	}

	var candidates []*models.ActionExecution

	for _, e := range r.p.executions.Items {
		if !e.IsValid || e.IsTest || retried[e.ExecutionID] {
			continue
		}

		if e.RetryCount >= maxRetry || !runnable[e.ActionDefinitionID] {
			continue
		}

		failed := e.Status == models.ExecutionStatusFailed
		stale := e.Status == models.ExecutionStatusRunning && e.StartedAt.Before(staleBefore)

		if failed || stale {
			candidates = append(candidates, e)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].StartedAt.Before(candidates[j].StartedAt)
	})

	limit, _ = persistence.NormalizePage(limit, 0)

	return page(candidates, limit, 0), nil
}

func (r *ActionExecutionRepository) RetentionSweep(_ context.Context, cutoff time.Time) (int64, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var swept []*models.ActionExecution

	for _, e := range r.p.executions.Items {
		if e.IsValid && e.Status.IsTerminal() && e.StartedAt.Before(cutoff) {
			e.IsValid = false
			swept = append(swept, e)
		}
	}

	if len(swept) == 0 {
		return 0, nil
	}

	if err := save(r.p.path(executionsFile), &r.p.executions); err != nil {
		for _, e := range swept {
			e.IsValid = true
		}

		return 0, err
	}

	return int64(len(swept)), nil
}
