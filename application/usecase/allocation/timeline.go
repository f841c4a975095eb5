package allocation

import (
	"context"
	"sort"

	"github.com/spacedesk/spacedesk/application/port/outbound"
	"github.com/spacedesk/spacedesk/domain"
	"github.com/spacedesk/spacedesk/domain/apperr"
	"github.com/spacedesk/spacedesk/infrastructure/service/logger"
)

// Timeline reconstructs the causally linked chain of an allocation line from
// any event in it. The walk is index lookups over the append-only log:
// backward via RelatedEventID, forward via the successor index.
type Timeline struct {
	events outbound.EventRepository
	locks  *entityLocks
	log    logger.Logger
}

// NewTimeline creates a reconstructor over the given event store
func NewTimeline(events outbound.EventRepository, locks *entityLocks, log logger.Logger) *Timeline {
	return &Timeline{events: events, locks: locks, log: log}
}

// RelatedEvents returns the full chain containing eventID, oldest first.
// The result is identical regardless of which event in the chain anchors the
// query. A missing predecessor truncates the backward walk instead of
// failing; multiple successors are tolerated and reported as a data-quality
// warning.
func (t *Timeline) RelatedEvents(ctx context.Context, eventID string) ([]*domain.AllocationEvent, error) {
	anchor, err := t.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	// Shared locks on both participants: writers against this line serialize
	// with us, so the walk observes a consistent snapshot.
	unlock := t.locks.rlockPair(anchor.FromEntityID, anchor.ToEntityID)
	defer unlock()

	chain := []*domain.AllocationEvent{anchor}
	seen := map[string]bool{anchor.ID: true}

	// Backward: prepend predecessors until a null link or a missing id.
	current := anchor
	for current.RelatedEventID != nil {
		prev, err := t.events.FindByID(ctx, *current.RelatedEventID)
		if err != nil {
			if apperr.HasCode(err, apperr.ErrCodeEventNotFound) {
				break
			}
			return nil, err
		}
		if seen[prev.ID] {
			break
		}
		seen[prev.ID] = true
		chain = append([]*domain.AllocationEvent{prev}, chain...)
		current = prev
	}

	// Forward: follow the successor index until exhausted. A fork means some
	// append bypassed the workflow; collect every branch anyway.
	frontier := []string{anchor.ID}
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		successors, err := t.events.FindSuccessors(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(successors) > 1 {
			t.log.Warn(ctx, "allocation chain has multiple successors", map[string]interface{}{
				"event_id":   id,
				"successors": len(successors),
			})
			sort.Slice(successors, func(i, j int) bool {
				if successors[i].Timestamp.Equal(successors[j].Timestamp) {
					return successors[i].ID < successors[j].ID
				}
				return successors[i].Timestamp.Before(successors[j].Timestamp)
			})
		}
		for _, succ := range successors {
			if seen[succ.ID] {
				continue
			}
			seen[succ.ID] = true
			chain = append(chain, succ)
			frontier = append(frontier, succ.ID)
		}
	}

	// The walk itself discovers events in causal order: ancestors were
	// prepended oldest first, descendants appended in supersession order.
	return chain, nil
}
