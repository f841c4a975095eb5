package inbound

import (
	"context"
	"time"

	"github.com/spacedesk/spacedesk/domain"
)

// PeriodRequest is the wire shape of an allocation period
type PeriodRequest struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CreateEntityRequest registers a new hierarchy participant. InitialHours is
// honored only for the singleton Owner, whose capacity is provisioned rather
// than received through the ledger.
type CreateEntityRequest struct {
	Name         string            `json:"name"`
	Type         domain.EntityType `json:"type"`
	ParentID     string            `json:"parent_id,omitempty"`
	InitialHours float64           `json:"initial_hours,omitempty"`
}

// CreateAllocationRequest grants hours from one entity to another
type CreateAllocationRequest struct {
	FromEntityID string        `json:"from_entity_id"`
	ToEntityID   string        `json:"to_entity_id"`
	HourAmount   float64       `json:"hour_amount"`
	Period       PeriodRequest `json:"period"`
	PerformedBy  string        `json:"performed_by"`
	Notes        string        `json:"notes,omitempty"`
}

// ModifyAllocationRequest supersedes the latest event of a chain with a new
// hour amount
type ModifyAllocationRequest struct {
	EventID       string  `json:"-"`
	NewHourAmount float64 `json:"new_hour_amount"`
	PerformedBy   string  `json:"performed_by"`
	Notes         string  `json:"notes,omitempty"`
}

// RevokeAllocationRequest returns part or all of a line to the allocator
type RevokeAllocationRequest struct {
	EventID      string  `json:"-"`
	RevokeAmount float64 `json:"revoke_amount"`
	PerformedBy  string  `json:"performed_by"`
	Notes        string  `json:"notes,omitempty"`
}

// BalanceSummary is the per-entity view exposed to collaborators
type BalanceSummary struct {
	EntityID       string              `json:"entity_id"`
	Name           string              `json:"name"`
	Type           domain.EntityType   `json:"type"`
	Status         domain.EntityStatus `json:"status"`
	HoursReceived  float64             `json:"hours_received"`
	HoursAllocated float64             `json:"hours_allocated"`
	HoursReserved  float64             `json:"hours_reserved"`
	AvailableHours float64             `json:"available_hours"`
}

// EntityUseCase is the registry surface consumed by collaborator screens
type EntityUseCase interface {
	CreateEntity(ctx context.Context, req CreateEntityRequest) (*domain.Entity, error)
	GetEntity(ctx context.Context, id string) (*domain.Entity, error)
	ListEntities(ctx context.Context) ([]*domain.Entity, error)
	ListChildren(ctx context.Context, parentID string) ([]*domain.Entity, error)
	PermittedRecipients(ctx context.Context, id string) ([]domain.EntityType, error)
	EntitySummary(ctx context.Context, id string) (*BalanceSummary, error)
}

// AllocationUseCase is the allocation workflow surface. Every operation is an
// atomic unit: one ledger append plus recompute of exactly the two affected
// entities.
type AllocationUseCase interface {
	CreateAllocation(ctx context.Context, req CreateAllocationRequest) (*domain.AllocationEvent, error)
	ModifyAllocation(ctx context.Context, req ModifyAllocationRequest) (*domain.AllocationEvent, error)
	RevokeAllocation(ctx context.Context, req RevokeAllocationRequest) (*domain.AllocationEvent, error)
	ExpireAllocation(ctx context.Context, eventID string) (*domain.AllocationEvent, error)
	RelatedEvents(ctx context.Context, eventID string) ([]*domain.AllocationEvent, error)
}
