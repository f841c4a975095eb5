package allocation

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/spacedesk/spacedesk/application/port/outbound"
	"github.com/spacedesk/spacedesk/domain"
	"github.com/spacedesk/spacedesk/domain/apperr"
)

// Ledger wraps the event store with the append-time rules of the allocation
// ledger: it assigns ids and server timestamps, enforces state-shape rules,
// verifies chain integrity against the predecessor, and refuses to fork a
// chain that already has a successor.
type Ledger struct {
	events outbound.EventRepository
	clock  clockwork.Clock
}

// NewLedger creates a ledger over the given event store
func NewLedger(events outbound.EventRepository, clock clockwork.Clock) *Ledger {
	return &Ledger{events: events, clock: clock}
}

// Append validates and stores one event, returning it with id and timestamp
// assigned
func (l *Ledger) Append(ctx context.Context, event *domain.AllocationEvent) (*domain.AllocationEvent, error) {
	event.ID = uuid.New().String()
	event.Timestamp = l.clock.Now().UTC()

	if err := event.ValidateShape(); err != nil {
		return nil, apperr.ErrInvalidEvent(err.Error(), err)
	}

	if event.RelatedEventID != nil {
		prev, err := l.events.FindByID(ctx, *event.RelatedEventID)
		if err != nil {
			return nil, err
		}
		if prev == nil {
			return nil, apperr.ErrEventNotFound(*event.RelatedEventID)
		}
		// Chain integrity: the predecessor's after state must be exactly the
		// state this event claims to supersede.
		if event.BeforeState == nil || !event.BeforeState.EquivalentTo(prev.AfterState) {
			return nil, apperr.ErrInvalidEvent("before state does not match predecessor after state", nil)
		}
		successors, err := l.events.FindSuccessors(ctx, prev.ID)
		if err != nil {
			return nil, err
		}
		if len(successors) > 0 {
			return nil, apperr.ErrConcurrentModification(
				"event " + prev.ID + " already superseded by " + successors[0].ID)
		}
	}

	if err := l.events.Append(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// Latest resolves the newest event of the chain containing eventID by
// following successor links. Forked chains are tolerated by always following
// the most recent successor.
func (l *Ledger) Latest(ctx context.Context, eventID string) (*domain.AllocationEvent, error) {
	current, err := l.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperr.ErrEventNotFound(eventID)
	}
	seen := map[string]bool{current.ID: true}
	for {
		successors, err := l.events.FindSuccessors(ctx, current.ID)
		if err != nil {
			return nil, err
		}
		if len(successors) == 0 {
			return current, nil
		}
		sort.Slice(successors, func(i, j int) bool {
			return successors[i].Timestamp.Before(successors[j].Timestamp)
		})
		next := successors[len(successors)-1]
		if seen[next.ID] {
			return current, nil
		}
		seen[next.ID] = true
		current = next
	}
}
