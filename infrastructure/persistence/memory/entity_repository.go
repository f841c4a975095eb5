package memory

import (
	"context"
	"sync"

	"github.com/spacedesk/spacedesk/application/port/outbound"
	"github.com/spacedesk/spacedesk/domain"
	"github.com/spacedesk/spacedesk/domain/apperr"
)

// EntityRepository is an in-memory EntityRepository used by tests and
// single-process deployments. All access goes through one RWMutex; values are
// copied on the way in and out so callers can never alias store state.
type EntityRepository struct {
	mu       sync.RWMutex
	entities map[string]*domain.Entity
	children map[string][]string
}

// NewEntityRepository creates an empty in-memory registry
func NewEntityRepository() *EntityRepository {
	return &EntityRepository{
		entities: make(map[string]*domain.Entity),
		children: make(map[string][]string),
	}
}

var _ outbound.EntityRepository = (*EntityRepository)(nil)

func (r *EntityRepository) Create(ctx context.Context, entity *domain.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entities[entity.ID]; exists {
		return apperr.ErrInvalidRequest("entity id already exists: " + entity.ID)
	}
	// Singleton root: the store is the last line of defense when two owner
	// registrations race past the usecase's existence check.
	if entity.Type == domain.EntityTypeOwner {
		for _, existing := range r.entities {
			if existing.Type == domain.EntityTypeOwner {
				return apperr.ErrOwnerExists(existing.ID)
			}
		}
	}
	stored := *entity
	r.entities[entity.ID] = &stored
	if entity.ParentID != nil {
		r.children[*entity.ParentID] = append(r.children[*entity.ParentID], entity.ID)
	}
	return nil
}

func (r *EntityRepository) FindByID(ctx context.Context, id string) (*domain.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entity, ok := r.entities[id]
	if !ok {
		return nil, apperr.ErrEntityNotFound(id)
	}
	out := *entity
	return &out, nil
}

func (r *EntityRepository) FindByType(ctx context.Context, entityType domain.EntityType) ([]*domain.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Entity
	for _, entity := range r.entities {
		if entity.Type == entityType {
			copied := *entity
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *EntityRepository) FindChildren(ctx context.Context, parentID string) ([]*domain.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Entity
	for _, id := range r.children[parentID] {
		copied := *r.entities[id]
		out = append(out, &copied)
	}
	return out, nil
}

func (r *EntityRepository) List(ctx context.Context) ([]*domain.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Entity, 0, len(r.entities))
	for _, entity := range r.entities {
		copied := *entity
		out = append(out, &copied)
	}
	return out, nil
}

func (r *EntityRepository) ApplyBalance(ctx context.Context, id string, balance domain.Balance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entity, ok := r.entities[id]
	if !ok {
		return apperr.ErrEntityNotFound(id)
	}
	entity.Balance = balance
	return nil
}

func (r *EntityRepository) UpdateStatus(ctx context.Context, id string, status domain.EntityStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entity, ok := r.entities[id]
	if !ok {
		return apperr.ErrEntityNotFound(id)
	}
	entity.Status = status
	return nil
}
