// Package registry maps action type tags to executor factories.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrUnsupportedActionType = errors.New("unsupported action type")
	ErrInvalidConfig         = errors.New("invalid action configuration")
)

// UnsupportedActionTypeError is returned when no factory is registered for a tag.
type UnsupportedActionTypeError struct {
	ActionType models.ActionType
}

func (e *UnsupportedActionTypeError) Error() string {
	return fmt.Sprintf("unsupported action type '%s'", e.ActionType)
}

func (e *UnsupportedActionTypeError) Is(target error) bool {
	return target == ErrUnsupportedActionType
}

// ConfigValidationError lists the schema violations of a configuration.
type ConfigValidationError struct {
	ActionType models.ActionType
	Problems   []string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid %s configuration: %s", e.ActionType, strings.Join(e.Problems, "; "))
}

func (e *ConfigValidationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	factories map[models.ActionType]protocol.ExecutorFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log.With("module", "registry"),
		factories: make(map[models.ActionType]protocol.ExecutorFactory),
	}
}

// Register adds a factory, replacing any previous one for the same type.
func (r *Registry) Register(factory protocol.ExecutorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[factory.ActionType()]; exists {
		r.logger.Warn("Replacing executor factory", "action_type", factory.ActionType())
	}

	r.factories[factory.ActionType()] = factory
}

func (r *Registry) factory(actionType models.ActionType) (protocol.ExecutorFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[actionType]
	if !ok {
		return nil, &UnsupportedActionTypeError{ActionType: actionType}
	}

	return factory, nil
}

// CreateExecutor returns a ready executor for the tag or an
// *UnsupportedActionTypeError. It never returns a nil executor without an error.
func (r *Registry) CreateExecutor(actionType models.ActionType) (protocol.ActionExecutor, error) {
	factory, err := r.factory(actionType)
	if err != nil {
		return nil, err
	}

	executor, err := factory.Create(protocol.Dependencies{
		Logger: r.logger.With("action_type", actionType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s executor: %w", actionType, err)
	}

	if executor == nil {
		return nil, fmt.Errorf("factory for %s returned no executor", actionType)
	}

	return executor, nil
}

// ValidateConfig checks configJSON against the factory schema.
func (r *Registry) ValidateConfig(actionType models.ActionType, configJSON string) error {
	factory, err := r.factory(actionType)
	if err != nil {
		return err
	}

	schema := factory.Schema()
	if len(schema) == 0 {
		return nil
	}

	if strings.TrimSpace(configJSON) == "" {
		configJSON = "{}"
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewStringLoader(configJSON),
	)
	if err != nil {
		return &ConfigValidationError{ActionType: actionType, Problems: []string{err.Error()}}
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return &ConfigValidationError{ActionType: actionType, Problems: problems}
	}

	return nil
}

// Types returns the registered tags in lexical order.
func (r *Registry) Types() []models.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.ActionType, 0, len(r.factories))
	for actionType := range r.factories {
		types = append(types, actionType)
	}

	slices.Sort(types)

	return types
}

// Factories returns the registered factories ordered by type.
func (r *Registry) Factories() []protocol.ExecutorFactory {
	types := r.Types()

	r.mu.RLock()
	defer r.mu.RUnlock()

	factories := make([]protocol.ExecutorFactory, 0, len(types))
	for _, actionType := range types {
		factories = append(factories, r.factories[actionType])
	}

	return factories
}

// HealthCheck builds one executor per registered type and reports the
// factories that fail.
func (r *Registry) HealthCheck(ctx context.Context) error {
	var errs []error

	for _, actionType := range r.Types() {
		if _, err := r.CreateExecutor(actionType); err != nil {
			r.logger.ErrorContext(ctx, "Executor health check failed", "action_type", actionType, "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// LoadExecutorPlugins opens every *.so under <pluginsPath>/executors and
// registers the exported Executor symbol of each.
func (r *Registry) LoadExecutorPlugins(ctx context.Context, pluginsPath string) ([]protocol.ExecutorFactory, error) {
	if pluginsPath == "" {
		return nil, nil
	}

	factories, err := loadPlugin[protocol.ExecutorFactory](ctx, r.logger, pluginsPath, "Executor")
	if err != nil {
		return nil, err
	}

	for _, factory := range factories {
		r.Register(factory)
	}

	return factories, nil
}

func loadPlugin[T any](ctx context.Context, logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := filepath.Join(pluginsPath, strings.ToLower(symbolName)+"s")

	if _, err := os.Stat(rootPath); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	pluginPathList, err := fs.Glob(os.DirFS(rootPath), "*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With("path", rootPath, "type", symbolName)
	l.InfoContext(ctx, "Loading plugins", "count", len(pluginPathList))

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(filepath.Join(rootPath, p))
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s does not export %s: %w", p, symbolName, err)
		}

		castV, ok := v.(T)
		if !ok {
			if ptr, isPtr := v.(*T); isPtr {
				castV = *ptr
			} else {
				return nil, fmt.Errorf("plugin %s: symbol %s has unexpected type %T", p, symbolName, v)
			}
		}

		pluginList = append(pluginList, castV)

		l.InfoContext(ctx, "Loaded executor plugin", "plugin", p)
	}

	return pluginList, nil
}
