package file

import (
	"context"
	"sort"
	"strings"

	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/persistence"
)

type ActionDefinitionRepository struct {
	p *Persistence
}

// find returns the stored valid row. Callers hold the lock.
func (r *ActionDefinitionRepository) find(id int64) *models.ActionDefinition {
	for _, d := range r.p.definitions.Items {
		if d.ID == id && d.IsValid {
			return d
		}
	}

	return nil
}

func (r *ActionDefinitionRepository) nameTaken(name string, excludeID int64) bool {
	for _, d := range r.p.definitions.Items {
		if d.IsValid && d.ActionName == name && d.ID != excludeID {
			return true
		}
	}

	return false
}

func (r *ActionDefinitionRepository) GetByID(_ context.Context, id int64) (*models.ActionDefinition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	d := r.find(id)
	if d == nil {
		return nil, persistence.NewDefinitionError("GetByID", id, persistence.ErrActionDefinitionNotFound)
	}

	return clone(d), nil
}

func (r *ActionDefinitionRepository) filter(keep func(d *models.ActionDefinition) bool) []*models.ActionDefinition {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	out := []*models.ActionDefinition{}

	for _, d := range r.p.definitions.Items {
		if d.IsValid && keep(d) {
			out = append(out, clone(d))
		}
	}

	return out
}

func (r *ActionDefinitionRepository) GetByType(_ context.Context, actionType models.ActionType) ([]*models.ActionDefinition, error) {
	return r.filter(func(d *models.ActionDefinition) bool { return d.ActionType == actionType }), nil
}

func (r *ActionDefinitionRepository) GetAllEnabled(_ context.Context) ([]*models.ActionDefinition, error) {
	return r.filter(func(d *models.ActionDefinition) bool { return d.IsEnabled }), nil
}

func (r *ActionDefinitionRepository) NameExists(_ context.Context, name string, excludeID int64) (bool, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.nameTaken(name, excludeID), nil
}

func (r *ActionDefinitionRepository) Search(_ context.Context, query persistence.DefinitionQuery) (*persistence.DefinitionPage, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	assigned := make(map[int64]bool)
	for _, m := range r.p.mappings.Items {
		if m.IsValid {
			assigned[m.ActionDefinitionID] = true
		}
	}

	keyword := strings.ToLower(strings.TrimSpace(query.Keyword))

	var matched []*models.ActionDefinition

	for _, d := range r.p.definitions.Items {
		if !d.IsValid {
			continue
		}

		if query.ActionType != "" && d.ActionType != query.ActionType {
			continue
		}

		if keyword != "" &&
			!strings.Contains(strings.ToLower(d.ActionName), keyword) &&
			!strings.Contains(strings.ToLower(d.Description), keyword) {
			continue
		}

		if query.Assigned != nil && assigned[d.ID] != *query.Assigned {
			continue
		}

		if query.IsEnabled != nil && d.IsEnabled != *query.IsEnabled {
			continue
		}

		matched = append(matched, d)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].ActionName != matched[j].ActionName {
			return matched[i].ActionName < matched[j].ActionName
		}

		return matched[i].ID < matched[j].ID
	})

	limit, offset := persistence.NormalizePage(query.Limit, query.Offset)

	return &persistence.DefinitionPage{
		Items:  page(matched, limit, offset),
		Total:  int64(len(matched)),
		Limit:  limit,
		Offset: offset,
	}, nil
}

func (r *ActionDefinitionRepository) Create(_ context.Context, definition *models.ActionDefinition) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if r.nameTaken(definition.ActionName, 0) {
		return persistence.NewDefinitionError("Create", 0, persistence.ErrDuplicateActionName)
	}

	now := r.p.now()

	stored := clone(definition)
	stored.ID = r.p.definitions.nextID()
	stored.IsValid = true
	stored.CreatedAt = now
	stored.ModifiedAt = now
	stored.ModifiedBy = stored.CreatedBy

	r.p.definitions.Items = append(r.p.definitions.Items, stored)

	if err := save(r.p.path(definitionsFile), &r.p.definitions); err != nil {
		r.p.definitions.Items = r.p.definitions.Items[:len(r.p.definitions.Items)-1]

		return err
	}

	*definition = *clone(stored)

	return nil
}

func (r *ActionDefinitionRepository) Update(_ context.Context, definition *models.ActionDefinition) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	stored := r.find(definition.ID)
	if stored == nil {
		return persistence.NewDefinitionError("Update", definition.ID, persistence.ErrActionDefinitionNotFound)
	}

	if r.nameTaken(definition.ActionName, definition.ID) {
		return persistence.NewDefinitionError("Update", definition.ID, persistence.ErrDuplicateActionName)
	}

	previous := *stored

	stored.ActionName = definition.ActionName
	stored.ActionType = definition.ActionType
	stored.Description = definition.Description
	stored.ConfigJSON = definition.ConfigJSON
	stored.IsEnabled = definition.IsEnabled
	stored.ModifiedBy = definition.ModifiedBy
	stored.ModifiedAt = r.p.now()

	if err := save(r.p.path(definitionsFile), &r.p.definitions); err != nil {
		*stored = previous

		return err
	}

	*definition = *clone(stored)

	return nil
}

func (r *ActionDefinitionRepository) SoftDelete(_ context.Context, id int64, userID *int64) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	stored := r.find(id)
	if stored == nil {
		return persistence.NewDefinitionError("SoftDelete", id, persistence.ErrActionDefinitionNotFound)
	}

	previous := *stored

	stored.IsValid = false
	stored.ModifiedBy = userID
	stored.ModifiedAt = r.p.now()

	if err := save(r.p.path(definitionsFile), &r.p.definitions); err != nil {
		*stored = previous

		return err
	}

	return nil
}

func (r *ActionDefinitionRepository) SetEnabled(_ context.Context, ids []int64, enabled bool, userID *int64) (int64, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	now := r.p.now()
	snapshot := make(map[int64]models.ActionDefinition, len(ids))

	for _, id := range ids {
		stored := r.find(id)
		if stored == nil {
			continue
		}

		if _, seen := snapshot[id]; !seen {
			snapshot[id] = *stored
		}

		stored.IsEnabled = enabled
		stored.ModifiedBy = userID
		stored.ModifiedAt = now
	}

	if len(snapshot) == 0 {
		return 0, nil
	}

	if err := save(r.p.path(definitionsFile), &r.p.definitions); err != nil {
		for id, previous := range snapshot {
			*r.find(id) = previous
		}

		return 0, err
	}

	return int64(len(snapshot)), nil
}
