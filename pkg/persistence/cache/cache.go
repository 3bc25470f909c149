// Package cache decorates a persistence layer with a Redis read-through cache
// for action definitions.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/actiond/pkg/models"
	"github.com/dukex/actiond/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

const DefaultTTL = 5 * time.Minute

const keyPrefix = "actiond:action_definition:"

// NewClient builds a client from a redis:// URL.
func NewClient(url string) (redis.UniversalClient, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid cache url: %w", err)
	}

	return redis.NewClient(options), nil
}

// Persistence serves definition reads from Redis and passes everything else
// through to the wrapped implementation.
type Persistence struct {
	persistence.Persistence

	client      redis.UniversalClient
	definitions *DefinitionRepository
}

func NewPersistence(inner persistence.Persistence, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Persistence {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Persistence{
		Persistence: inner,
		client:      client,
		definitions: &DefinitionRepository{
			ActionDefinitionRepository: inner.ActionDefinitions(),
			client:                     client,
			ttl:                        ttl,
			logger:                     logger.With("module", "definition_cache"),
		},
	}
}

func (p *Persistence) ActionDefinitions() persistence.ActionDefinitionRepository {
	return p.definitions
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping cache: %w", err)
	}

	return p.Persistence.HealthCheck(ctx)
}

func (p *Persistence) Close(ctx context.Context) error {
	return errors.Join(p.client.Close(), p.Persistence.Close(ctx))
}

// DefinitionRepository caches GetByID; every mutation evicts the touched ids.
// Cache failures are logged and never fail the call.
type DefinitionRepository struct {
	persistence.ActionDefinitionRepository

	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

func key(id int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, id)
}

func (r *DefinitionRepository) GetByID(ctx context.Context, id int64) (*models.ActionDefinition, error) {
	raw, err := r.client.Get(ctx, key(id)).Bytes()

	switch {
	case err == nil:
		var definition models.ActionDefinition
		if err := json.Unmarshal(raw, &definition); err == nil {
			return &definition, nil
		}

		r.logger.WarnContext(ctx, "Discarding undecodable cache entry", "action_definition_id", id)
	case !errors.Is(err, redis.Nil):
		r.logger.WarnContext(ctx, "Cache read failed", "action_definition_id", id, "error", err)
	}

	definition, err := r.ActionDefinitionRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	raw, err = json.Marshal(definition)
	if err == nil {
		err = r.client.Set(ctx, key(id), raw, r.ttl).Err()
	}

	if err != nil {
		r.logger.WarnContext(ctx, "Cache write failed", "action_definition_id", id, "error", err)
	}

	return definition, nil
}

func (r *DefinitionRepository) evict(ctx context.Context, ids ...int64) {
	if len(ids) == 0 {
		return
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, key(id))
	}

	err := r.client.Del(ctx, keys...).Err()
	if err != nil {
		r.logger.WarnContext(ctx, "Cache eviction failed", "action_definition_ids", ids, "error", err)
	}
}

func (r *DefinitionRepository) Update(ctx context.Context, definition *models.ActionDefinition) error {
	defer r.evict(ctx, definition.ID)

	return r.ActionDefinitionRepository.Update(ctx, definition)
}

func (r *DefinitionRepository) SoftDelete(ctx context.Context, id int64, userID *int64) error {
	defer r.evict(ctx, id)

	return r.ActionDefinitionRepository.SoftDelete(ctx, id, userID)
}

func (r *DefinitionRepository) SetEnabled(ctx context.Context, ids []int64, enabled bool, userID *int64) (int64, error) {
	defer r.evict(ctx, ids...)

	return r.ActionDefinitionRepository.SetEnabled(ctx, ids, enabled, userID)
}
