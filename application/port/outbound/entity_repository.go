package outbound

import (
	"context"

	"github.com/spacedesk/spacedesk/domain"
)

// EntityRepository is the canonical store of hierarchy participants.
// Entities are never deleted; balances are only written through ApplyBalance,
// which is reserved for the balance calculator and the allocation workflow.
type EntityRepository interface {
	Create(ctx context.Context, entity *domain.Entity) error
	FindByID(ctx context.Context, id string) (*domain.Entity, error)
	FindByType(ctx context.Context, entityType domain.EntityType) ([]*domain.Entity, error)
	FindChildren(ctx context.Context, parentID string) ([]*domain.Entity, error)
	List(ctx context.Context) ([]*domain.Entity, error)
	ApplyBalance(ctx context.Context, id string, balance domain.Balance) error
	UpdateStatus(ctx context.Context, id string, status domain.EntityStatus) error
}
