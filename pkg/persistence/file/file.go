// Package file provides a JSON file persistence implementation for local runs
// and tests. Each collection lives in its own file under the root directory and
// all repositories share one lock.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/persistence"
)

const (
	definitionsFile = "action_definitions.json"
	mappingsFile    = "trigger_mappings.json"
	executionsFile  = "action_executions.json"
)

type collection[T any] struct {
	NextID int64 `json:"next_id"`
	Items  []*T  `json:"items"`
}

func (c *collection[T]) nextID() int64 {
	c.NextID++

	return c.NextID
}

// Persistence implements persistence.Persistence on the file system.
type Persistence struct {
	root string
	mu   sync.RWMutex
	now  func() time.Time

	definitions collection[models.ActionDefinition]
	mappings    collection[models.ActionTriggerMapping]
	executions  collection[models.ActionExecution]

	definitionRepo *ActionDefinitionRepository
	mappingRepo    *TriggerMappingRepository
	executionRepo  *ActionExecutionRepository
}

// NewPersistence opens (or creates) the store rooted at root. A "file://"
// prefix is accepted.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	if err := os.MkdirAll(cleanRoot, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", cleanRoot, err)
	}

	p := &Persistence{
		root: cleanRoot,
		now:  func() time.Time { return time.Now().UTC() },
	}

	if err := load(p.path(definitionsFile), &p.definitions); err != nil {
		return nil, err
	}

	if err := load(p.path(mappingsFile), &p.mappings); err != nil {
		return nil, err
	}

	if err := load(p.path(executionsFile), &p.executions); err != nil {
		return nil, err
	}

	p.definitionRepo = &ActionDefinitionRepository{p: p}
	p.mappingRepo = &TriggerMappingRepository{p: p}
	p.executionRepo = &ActionExecutionRepository{p: p}

	return p, nil
}

func (p *Persistence) ActionDefinitions() persistence.ActionDefinitionRepository {
	return p.definitionRepo
}

func (p *Persistence) TriggerMappings() persistence.TriggerMappingRepository {
	return p.mappingRepo
}

func (p *Persistence) ActionExecutions() persistence.ActionExecutionRepository {
	return p.executionRepo
}

// HealthCheck verifies the root directory still exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); err != nil {
		return fmt.Errorf("data directory unavailable: %w", err)
	}

	return nil
}

// Close is a no-op: every mutation is already on disk.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) path(name string) string {
	return filepath.Join(p.root, name)
}

func load[T any](path string, c *collection[T]) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from the configured root
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}

	return nil
}

// save writes the collection through a temp file and a rename so readers never
// see a partial file.
func save[T any](path string, c *collection[T]) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}

	return nil
}

func clone[T any](v *T) *T {
	c := *v

	return &c
}

func page[T any](items []*T, limit, offset int) []*T {
	limit, offset = persistence.NormalizePage(limit, offset)

	if offset >= len(items) {
		return []*T{}
	}

	end := min(offset+limit, len(items))

	out := make([]*T, 0, end-offset)
	for _, item := range items[offset:end] {
		out = append(out, clone(item))
	}

	return out
}
