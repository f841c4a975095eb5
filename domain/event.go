package domain

import (
	"errors"
	"fmt"
	"time"
)

// ActionType represents the kind of allocation event recorded in the ledger
type ActionType string

const (
	ActionCreated  ActionType = "CREATED"
	ActionModified ActionType = "MODIFIED"
	ActionRevoked  ActionType = "REVOKED"
	ActionExpired  ActionType = "EXPIRED"
)

// LineStatus marks an allocation line that has reached a terminal lifecycle state
type LineStatus string

const (
	LineStatusExpired LineStatus = "EXPIRED"
)

// AllocationPeriod is the named window an allocation line covers
type AllocationPeriod struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// LapsedAt reports whether the period's window has closed as of t
func (p AllocationPeriod) LapsedAt(t time.Time) bool {
	return !p.End.IsZero() && p.End.Before(t)
}

// EventState is the snapshot of one allocation line carried by a ledger event
type EventState struct {
	HourAmount float64          `json:"hour_amount"`
	Period     AllocationPeriod `json:"period"`
	Status     LineStatus       `json:"status,omitempty"`
}

// AllocationEvent is one immutable ledger entry. Events for a given
// (FromEntityID, ToEntityID, Period) form a forward chain via RelatedEventID;
// each event's AfterState equals its successor's BeforeState.
type AllocationEvent struct {
	ID             string           `json:"id"`
	Timestamp      time.Time        `json:"timestamp"`
	ActionType     ActionType       `json:"action_type"`
	FromEntityID   string           `json:"from_entity_id"`
	ToEntityID     string           `json:"to_entity_id"`
	Period         AllocationPeriod `json:"allocation_period"`
	PerformedBy    string           `json:"performed_by"`
	Notes          string           `json:"notes,omitempty"`
	BeforeState    *EventState      `json:"before_state,omitempty"`
	AfterState     EventState       `json:"after_state"`
	RelatedEventID *string          `json:"related_event_id,omitempty"`
}

// SystemActor is recorded as PerformedBy on system-triggered events
const SystemActor = "System"

var (
	ErrEventShape = errors.New("invalid event state shape")
)

// NewCreatedEvent opens a new allocation line. Created events are chain roots:
// no before state, no predecessor link.
func NewCreatedEvent(fromID, toID string, amount float64, period AllocationPeriod, performedBy, notes string) *AllocationEvent {
	return &AllocationEvent{
		ActionType:   ActionCreated,
		FromEntityID: fromID,
		ToEntityID:   toID,
		Period:       period,
		PerformedBy:  performedBy,
		Notes:        notes,
		AfterState: EventState{
			HourAmount: amount,
			Period:     period,
		},
	}
}

// NewModifiedEvent supersedes prev with a new hour amount on the same line
func NewModifiedEvent(prev *AllocationEvent, newAmount float64, performedBy, notes string) *AllocationEvent {
	before := prev.AfterState
	return &AllocationEvent{
		ActionType:   ActionModified,
		FromEntityID: prev.FromEntityID,
		ToEntityID:   prev.ToEntityID,
		Period:       prev.Period,
		PerformedBy:  performedBy,
		Notes:        notes,
		BeforeState:  &before,
		AfterState: EventState{
			HourAmount: newAmount,
			Period:     prev.Period,
		},
		RelatedEventID: &prev.ID,
	}
}

// NewRevokedEvent returns revokeAmount hours from the line to the allocator
func NewRevokedEvent(prev *AllocationEvent, revokeAmount float64, performedBy, notes string) *AllocationEvent {
	before := prev.AfterState
	return &AllocationEvent{
		ActionType:   ActionRevoked,
		FromEntityID: prev.FromEntityID,
		ToEntityID:   prev.ToEntityID,
		Period:       prev.Period,
		PerformedBy:  performedBy,
		Notes:        notes,
		BeforeState:  &before,
		AfterState: EventState{
			HourAmount: before.HourAmount - revokeAmount,
			Period:     prev.Period,
		},
		RelatedEventID: &prev.ID,
	}
}

// NewExpiredEvent closes the line: the remaining amount drops to zero and the
// line status becomes EXPIRED. Always system-triggered.
func NewExpiredEvent(prev *AllocationEvent) *AllocationEvent {
	before := prev.AfterState
	return &AllocationEvent{
		ActionType:   ActionExpired,
		FromEntityID: prev.FromEntityID,
		ToEntityID:   prev.ToEntityID,
		Period:       prev.Period,
		PerformedBy:  SystemActor,
		BeforeState:  &before,
		AfterState: EventState{
			HourAmount: 0,
			Period:     prev.Period,
			Status:     LineStatusExpired,
		},
		RelatedEventID: &prev.ID,
	}
}

// ValidateShape enforces the per-action state shape rules:
// Created carries no before state and no predecessor; every other action
// carries both; Revoked and Expired may never increase the amount.
func (e *AllocationEvent) ValidateShape() error {
	if e.FromEntityID == "" || e.ToEntityID == "" {
		return fmt.Errorf("%w: missing participant ids", ErrEventShape)
	}
	if e.AfterState.HourAmount < 0 {
		return fmt.Errorf("%w: negative after amount %.2f", ErrEventShape, e.AfterState.HourAmount)
	}
	switch e.ActionType {
	case ActionCreated:
		if e.BeforeState != nil {
			return fmt.Errorf("%w: created event must not carry a before state", ErrEventShape)
		}
		if e.RelatedEventID != nil {
			return fmt.Errorf("%w: created event must be a chain root", ErrEventShape)
		}
	case ActionModified:
		if e.BeforeState == nil || e.RelatedEventID == nil {
			return fmt.Errorf("%w: modified event requires a before state and predecessor", ErrEventShape)
		}
	case ActionRevoked, ActionExpired:
		if e.BeforeState == nil || e.RelatedEventID == nil {
			return fmt.Errorf("%w: %s event requires a before state and predecessor", ErrEventShape, e.ActionType)
		}
		if e.AfterState.HourAmount > e.BeforeState.HourAmount {
			return fmt.Errorf("%w: %s event cannot increase the amount (%.2f > %.2f)",
				ErrEventShape, e.ActionType, e.AfterState.HourAmount, e.BeforeState.HourAmount)
		}
		if e.ActionType == ActionExpired && e.AfterState.HourAmount != 0 {
			return fmt.Errorf("%w: expired event must zero the amount", ErrEventShape)
		}
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrEventShape, e.ActionType)
	}
	return nil
}

// EquivalentTo compares two states by value. Period times are compared as
// instants so states survive a database round trip.
func (s EventState) EquivalentTo(o EventState) bool {
	return s.HourAmount == o.HourAmount &&
		s.Status == o.Status &&
		s.Period.Name == o.Period.Name &&
		s.Period.Start.Equal(o.Period.Start) &&
		s.Period.End.Equal(o.Period.End)
}

// Terminal reports whether the line admits no further events after e.
// Expired lines are terminal; a revoke that drains the line to zero is too.
func (e *AllocationEvent) Terminal() bool {
	if e.ActionType == ActionExpired {
		return true
	}
	return e.ActionType == ActionRevoked && e.AfterState.HourAmount == 0
}

// LineKey identifies the allocation line this event belongs to
func (e *AllocationEvent) LineKey() string {
	return e.FromEntityID + "|" + e.ToEntityID + "|" + e.Period.Name
}
