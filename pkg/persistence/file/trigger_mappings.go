package file

import (
	"context"
	"sort"

	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/persistence"
)

type TriggerMappingRepository struct {
	p *Persistence
}

func (r *TriggerMappingRepository) find(id int64) *models.ActionTriggerMapping {
	for _, m := range r.p.mappings.Items {
		if m.ID == id && m.IsValid {
			return m
		}
	}

	return nil
}

func (r *TriggerMappingRepository) duplicate(m *models.ActionTriggerMapping, excludeID int64) bool {
	for _, other := range r.p.mappings.Items {
		if other.IsValid && other.ID != excludeID &&
			other.ActionDefinitionID == m.ActionDefinitionID &&
			other.TriggerType == m.TriggerType &&
			other.TriggerSourceID == m.TriggerSourceID &&
			other.WorkflowID == m.WorkflowID {
			return true
		}
	}

	return false
}

func sortMappings(mappings []*models.ActionTriggerMapping) {
	sort.SliceStable(mappings, func(i, j int) bool {
		if mappings[i].ExecutionOrder != mappings[j].ExecutionOrder {
			return mappings[i].ExecutionOrder < mappings[j].ExecutionOrder
		}

		return mappings[i].ID < mappings[j].ID
	})
}

func (r *TriggerMappingRepository) GetByID(_ context.Context, id int64) (*models.ActionTriggerMapping, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	m := r.find(id)
	if m == nil {
		return nil, persistence.NewMappingError("GetByID", id, persistence.ErrTriggerMappingNotFound)
	}

	return clone(m), nil
}

func (r *TriggerMappingRepository) ListByDefinition(_ context.Context, definitionID int64) ([]*models.ActionTriggerMapping, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	out := []*models.ActionTriggerMapping{}

	for _, m := range r.p.mappings.Items {
		if m.IsValid && m.ActionDefinitionID == definitionID {
			out = append(out, clone(m))
		}
	}

	sortMappings(out)

	return out, nil
}

func (r *TriggerMappingRepository) Candidates(_ context.Context, sourceID int64, event string) ([]*models.ActionTriggerMapping, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	out := []*models.ActionTriggerMapping{}

	for _, m := range r.p.mappings.Items {
		if m.IsValid && m.IsEnabled && m.TriggerSourceID == sourceID && m.TriggerEvent == event {
			out = append(out, clone(m))
		}
	}

	sortMappings(out)

	return out, nil
}

func (r *TriggerMappingRepository) Exists(_ context.Context, definitionID int64, triggerType models.TriggerType,
	sourceID int64, workflowID models.Scope, excludeID int64,
) (bool, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.duplicate(&models.ActionTriggerMapping{
		ActionDefinitionID: definitionID,
		TriggerType:        triggerType,
		TriggerSourceID:    sourceID,
		WorkflowID:         workflowID,
	}, excludeID), nil
}

func (r *TriggerMappingRepository) Create(_ context.Context, mapping *models.ActionTriggerMapping) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if r.duplicate(mapping, 0) {
		return persistence.NewMappingError("Create", 0, persistence.ErrDuplicateTriggerMapping)
	}

	now := r.p.now()

	stored := clone(mapping)
	stored.ID = r.p.mappings.nextID()
	stored.IsValid = true
	stored.CreatedAt = now
	stored.ModifiedAt = now
	stored.ModifiedBy = stored.CreatedBy

	r.p.mappings.Items = append(r.p.mappings.Items, stored)

	if err := save(r.p.path(mappingsFile), &r.p.mappings); err != nil {
		r.p.mappings.Items = r.p.mappings.Items[:len(r.p.mappings.Items)-1]

		return err
	}

	*mapping = *clone(stored)

	return nil
}

func (r *TriggerMappingRepository) Update(_ context.Context, mapping *models.ActionTriggerMapping) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	stored := r.find(mapping.ID)
	if stored == nil {
		return persistence.NewMappingError("Update", mapping.ID, persistence.ErrTriggerMappingNotFound)
	}

	if r.duplicate(mapping, mapping.ID) {
		return persistence.NewMappingError("Update", mapping.ID, persistence.ErrDuplicateTriggerMapping)
	}

	previous := *stored

	stored.ActionDefinitionID = mapping.ActionDefinitionID
	stored.TriggerType = mapping.TriggerType
	stored.TriggerSourceID = mapping.TriggerSourceID
	stored.TriggerEvent = mapping.TriggerEvent
	stored.WorkflowID = mapping.WorkflowID
	stored.StageID = mapping.StageID
	stored.ExecutionOrder = mapping.ExecutionOrder
	stored.Description = mapping.Description
	stored.IsEnabled = mapping.IsEnabled
	stored.ModifiedBy = mapping.ModifiedBy
	stored.ModifiedAt = r.p.now()

	if err := save(r.p.path(mappingsFile), &r.p.mappings); err != nil {
		*stored = previous

		return err
	}

	*mapping = *clone(stored)

	return nil
}

func (r *TriggerMappingRepository) mutate(op string, id int64, apply func(m *models.ActionTriggerMapping)) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	stored := r.find(id)
	if stored == nil {
		return persistence.NewMappingError(op, id, persistence.ErrTriggerMappingNotFound)
	}

	previous := *stored

	apply(stored)
	stored.ModifiedAt = r.p.now()

	if err := save(r.p.path(mappingsFile), &r.p.mappings); err != nil {
		*stored = previous

		return err
	}

	return nil
}

func (r *TriggerMappingRepository) SoftDelete(_ context.Context, id int64, userID *int64) error {
	return r.mutate("SoftDelete", id, func(m *models.ActionTriggerMapping) {
		m.IsValid = false
		m.ModifiedBy = userID
	})
}

func (r *TriggerMappingRepository) SetEnabled(_ context.Context, id int64, enabled bool, userID *int64) error {
	return r.mutate("SetEnabled", id, func(m *models.ActionTriggerMapping) {
		m.IsEnabled = enabled
		m.ModifiedBy = userID
	})
}
