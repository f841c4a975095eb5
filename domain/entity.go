package domain

import (
	"time"
)

// EntityType represents the level of a participant in the allocation hierarchy
type EntityType string

const (
	EntityTypeOwner     EntityType = "OWNER"
	EntityTypeDeveloper EntityType = "DEVELOPER"
	EntityTypeOperator  EntityType = "OPERATOR"
	EntityTypeCorporate EntityType = "CORPORATE"
	EntityTypeEmployee  EntityType = "EMPLOYEE"
)

// EntityStatus represents the lifecycle status of an entity
type EntityStatus string

const (
	EntityStatusActive   EntityStatus = "ACTIVE"
	EntityStatusInactive EntityStatus = "INACTIVE"
	// EntityStatusExpired is terminal and only ever set by the system.
	EntityStatusExpired EntityStatus = "EXPIRED"
)

// Balance holds the derived hour figures of an entity. AvailableHours is
// always the residual of the other three; it is stored for the query surface
// but re-derivable from the ledger at any time.
type Balance struct {
	HoursReceived  float64 `json:"hours_received"`
	HoursAllocated float64 `json:"hours_allocated"`
	HoursReserved  float64 `json:"hours_reserved"`
	AvailableHours float64 `json:"available_hours"`
}

// Entity represents a participant in the allocation hierarchy
type Entity struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Type      EntityType   `json:"type"`
	ParentID  *string      `json:"parent_id,omitempty"`
	Status    EntityStatus `json:"status"`
	Balance   Balance      `json:"balance"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewEntity creates a new active entity with a zero balance
func NewEntity(id, name string, entityType EntityType, parentID *string, now time.Time) *Entity {
	return &Entity{
		ID:        id,
		Name:      name,
		Type:      entityType,
		ParentID:  parentID,
		Status:    EntityStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsRoot reports whether the entity is the hierarchy root (the single Owner)
func (e *Entity) IsRoot() bool {
	return e.ParentID == nil
}

// ValidEntityType reports whether t is one of the known hierarchy levels
func ValidEntityType(t EntityType) bool {
	switch t {
	case EntityTypeOwner, EntityTypeDeveloper, EntityTypeOperator, EntityTypeCorporate, EntityTypeEmployee:
		return true
	}
	return false
}
