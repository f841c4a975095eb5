package memory

import (
	"context"
	"sync"
	"time"

	"github.com/spacedesk/spacedesk/application/port/outbound"
	"github.com/spacedesk/spacedesk/domain"
	"github.com/spacedesk/spacedesk/domain/apperr"
)

// EventRepository is an in-memory append-only event store. Alongside the
// primary map it maintains the two secondary indexes the ledger depends on:
// successor lookup by RelatedEventID and line lookup by (from, to, period),
// both updated incrementally on append.
type EventRepository struct {
	mu         sync.RWMutex
	events     map[string]*domain.AllocationEvent
	successors map[string][]string // related event id -> successor ids
	lines      map[string][]string // line key -> event ids, append order
	byFrom     map[string][]string // allocator id -> line keys
	byTo       map[string][]string // recipient id -> line keys
}

// NewEventRepository creates an empty in-memory ledger store
func NewEventRepository() *EventRepository {
	return &EventRepository{
		events:     make(map[string]*domain.AllocationEvent),
		successors: make(map[string][]string),
		lines:      make(map[string][]string),
		byFrom:     make(map[string][]string),
		byTo:       make(map[string][]string),
	}
}

var _ outbound.EventRepository = (*EventRepository)(nil)

func (r *EventRepository) Append(ctx context.Context, event *domain.AllocationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[event.ID]; exists {
		return apperr.ErrInvalidEvent("duplicate event id "+event.ID, nil)
	}
	if event.RelatedEventID != nil {
		// Single-successor supersession: a second append against the same
		// predecessor lost the race.
		if existing := r.successors[*event.RelatedEventID]; len(existing) > 0 {
			return apperr.ErrConcurrentModification(
				"event " + *event.RelatedEventID + " already superseded by " + existing[0])
		}
	}

	stored := *event
	r.events[event.ID] = &stored
	if event.RelatedEventID != nil {
		r.successors[*event.RelatedEventID] = append(r.successors[*event.RelatedEventID], event.ID)
	}

	key := event.LineKey()
	if len(r.lines[key]) == 0 {
		r.byFrom[event.FromEntityID] = append(r.byFrom[event.FromEntityID], key)
		r.byTo[event.ToEntityID] = append(r.byTo[event.ToEntityID], key)
	}
	r.lines[key] = append(r.lines[key], event.ID)
	return nil
}

func (r *EventRepository) FindByID(ctx context.Context, id string) (*domain.AllocationEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	event, ok := r.events[id]
	if !ok {
		return nil, apperr.ErrEventNotFound(id)
	}
	out := *event
	return &out, nil
}

func (r *EventRepository) FindSuccessors(ctx context.Context, eventID string) ([]*domain.AllocationEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.AllocationEvent
	for _, id := range r.successors[eventID] {
		copied := *r.events[id]
		out = append(out, &copied)
	}
	return out, nil
}

func (r *EventRepository) FindByLine(ctx context.Context, fromID, toID, periodName string) ([]*domain.AllocationEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := fromID + "|" + toID + "|" + periodName
	var out []*domain.AllocationEvent
	for _, id := range r.lines[key] {
		copied := *r.events[id]
		out = append(out, &copied)
	}
	return out, nil
}

func (r *EventRepository) LatestByRecipient(ctx context.Context, toID string) ([]*domain.AllocationEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latestOfLines(r.byTo[toID]), nil
}

func (r *EventRepository) LatestByAllocator(ctx context.Context, fromID string) ([]*domain.AllocationEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latestOfLines(r.byFrom[fromID]), nil
}

func (r *EventRepository) FindLapsedLines(ctx context.Context, asOf time.Time) ([]*domain.AllocationEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.AllocationEvent
	for _, ids := range r.lines {
		latest := r.events[ids[len(ids)-1]]
		if latest.ActionType == domain.ActionExpired {
			continue
		}
		if latest.Period.LapsedAt(asOf) {
			copied := *latest
			out = append(out, &copied)
		}
	}
	return out, nil
}

// latestOfLines returns a copy of the newest event of each listed line.
// Callers must hold at least the read lock.
func (r *EventRepository) latestOfLines(keys []string) []*domain.AllocationEvent {
	var out []*domain.AllocationEvent
	for _, key := range keys {
		ids := r.lines[key]
		if len(ids) == 0 {
			continue
		}
		copied := *r.events[ids[len(ids)-1]]
		out = append(out, &copied)
	}
	return out
}
