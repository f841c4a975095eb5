package allocation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/spacedesk/spacedesk/application/port/inbound"
	"github.com/spacedesk/spacedesk/application/port/outbound"
	"github.com/spacedesk/spacedesk/domain"
	"github.com/spacedesk/spacedesk/domain/apperr"
	"github.com/spacedesk/spacedesk/infrastructure/service/logger"
)

// Workflow orchestrates entity registration and the allocation operations as
// atomic, validated units: all validation happens before any write, and every
// write is one ledger append followed by recompute of exactly the two
// affected entities, all under the per-entity locks.
type Workflow struct {
	entities outbound.EntityRepository
	events   outbound.EventRepository
	ledger   *Ledger
	balances *BalanceCalculator
	timeline *Timeline
	locks    *entityLocks
	clock    clockwork.Clock
	log      logger.Logger
}

// NewWorkflow wires the allocation core over the given stores
func NewWorkflow(
	entities outbound.EntityRepository,
	events outbound.EventRepository,
	clock clockwork.Clock,
	log logger.Logger,
) *Workflow {
	locks := newEntityLocks()
	return &Workflow{
		entities: entities,
		events:   events,
		ledger:   NewLedger(events, clock),
		balances: NewBalanceCalculator(entities, events),
		timeline: NewTimeline(events, locks, log),
		locks:    locks,
		clock:    clock,
		log:      log,
	}
}

var _ inbound.EntityUseCase = (*Workflow)(nil)
var _ inbound.AllocationUseCase = (*Workflow)(nil)

// CreateEntity registers a new hierarchy participant under an active parent.
// The singleton Owner has no parent and carries provisioned capacity.
func (w *Workflow) CreateEntity(ctx context.Context, req inbound.CreateEntityRequest) (*domain.Entity, error) {
	if req.Name == "" {
		return nil, apperr.ErrInvalidRequest("name is required")
	}
	if !domain.ValidEntityType(req.Type) {
		return nil, apperr.ErrInvalidRequest(fmt.Sprintf("unknown entity type %q", req.Type))
	}

	now := w.clock.Now().UTC()

	if req.Type == domain.EntityTypeOwner {
		if req.ParentID != "" {
			return nil, apperr.ErrInvalidRequest("the owner has no parent")
		}
		if req.InitialHours < 0 {
			return nil, apperr.ErrInvalidRequest("initial hours cannot be negative")
		}
		owners, err := w.entities.FindByType(ctx, domain.EntityTypeOwner)
		if err != nil {
			return nil, err
		}
		if len(owners) > 0 {
			return nil, apperr.ErrOwnerExists(owners[0].ID)
		}
		entity := domain.NewEntity(uuid.New().String(), req.Name, req.Type, nil, now)
		entity.Balance = domain.Balance{
			HoursReceived:  req.InitialHours,
			AvailableHours: req.InitialHours,
		}
		if err := w.entities.Create(ctx, entity); err != nil {
			return nil, err
		}
		w.log.Info(ctx, "owner entity created", map[string]interface{}{
			"entity_id": entity.ID,
			"hours":     req.InitialHours,
		})
		return entity, nil
	}

	if req.ParentID == "" {
		return nil, apperr.ErrInvalidRequest("parent_id is required for non-owner entities")
	}
	parent, err := w.entities.FindByID(ctx, req.ParentID)
	if err != nil {
		return nil, err
	}
	if parent.Status != domain.EntityStatusActive {
		// An inactive parent cannot anchor new entities; to the caller the
		// reference is as good as dangling.
		return nil, apperr.ErrEntityNotFound(req.ParentID)
	}

	parentID := parent.ID
	entity := domain.NewEntity(uuid.New().String(), req.Name, req.Type, &parentID, now)
	if err := w.entities.Create(ctx, entity); err != nil {
		return nil, err
	}
	w.log.Info(ctx, "entity created", map[string]interface{}{
		"entity_id": entity.ID,
		"type":      string(entity.Type),
		"parent_id": parentID,
	})
	return entity, nil
}

// GetEntity returns the entity as stored
func (w *Workflow) GetEntity(ctx context.Context, id string) (*domain.Entity, error) {
	return w.entities.FindByID(ctx, id)
}

// ListEntities returns every hierarchy participant
func (w *Workflow) ListEntities(ctx context.Context) ([]*domain.Entity, error) {
	return w.entities.List(ctx)
}

// ListChildren returns the direct children of an entity
func (w *Workflow) ListChildren(ctx context.Context, parentID string) ([]*domain.Entity, error) {
	if _, err := w.entities.FindByID(ctx, parentID); err != nil {
		return nil, err
	}
	return w.entities.FindChildren(ctx, parentID)
}

// PermittedRecipients returns the hierarchy levels the entity may allocate to
func (w *Workflow) PermittedRecipients(ctx context.Context, id string) ([]domain.EntityType, error) {
	entity, err := w.entities.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return domain.PermittedRecipients(entity.Type), nil
}

// EntitySummary replays the entity's ledger and returns the derived figures.
// The stored balance is never trusted on this path.
func (w *Workflow) EntitySummary(ctx context.Context, id string) (*inbound.BalanceSummary, error) {
	entity, err := w.entities.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	balance, err := w.balances.Recompute(ctx, id)
	if err != nil {
		return nil, err
	}
	return &inbound.BalanceSummary{
		EntityID:       entity.ID,
		Name:           entity.Name,
		Type:           entity.Type,
		Status:         entity.Status,
		HoursReceived:  balance.HoursReceived,
		HoursAllocated: balance.HoursAllocated,
		HoursReserved:  balance.HoursReserved,
		AvailableHours: balance.AvailableHours,
	}, nil
}

// CreateAllocation grants hours from one entity to another, opening a new
// allocation line
func (w *Workflow) CreateAllocation(ctx context.Context, req inbound.CreateAllocationRequest) (*domain.AllocationEvent, error) {
	if req.FromEntityID == "" || req.ToEntityID == "" {
		return nil, apperr.ErrInvalidRequest("both entity ids are required")
	}
	if req.FromEntityID == req.ToEntityID {
		return nil, apperr.ErrInvalidRequest("an entity cannot allocate to itself")
	}
	if req.HourAmount <= 0 {
		return nil, apperr.ErrInvalidRequest(fmt.Sprintf("hour amount must be positive, got %.2f", req.HourAmount))
	}
	if req.Period.Name == "" {
		return nil, apperr.ErrInvalidRequest("allocation period name is required")
	}
	if req.PerformedBy == "" {
		return nil, apperr.ErrInvalidRequest("performed_by is required")
	}

	unlock := w.locks.lockPair(req.FromEntityID, req.ToEntityID)
	defer unlock()

	from, err := w.entities.FindByID(ctx, req.FromEntityID)
	if err != nil {
		return nil, err
	}
	to, err := w.entities.FindByID(ctx, req.ToEntityID)
	if err != nil {
		return nil, err
	}
	if from.Status != domain.EntityStatusActive {
		return nil, apperr.ErrEntityInactive(from.ID, string(from.Status))
	}
	if to.Status != domain.EntityStatusActive {
		return nil, apperr.ErrEntityInactive(to.ID, string(to.Status))
	}
	if !domain.CanAllocate(from.Type, to.Type) {
		return nil, apperr.ErrHierarchyViolation(string(from.Type), string(to.Type))
	}

	// One live line per (from, to, period): a second grant would fork the
	// relationship's chain.
	existing, err := w.events.FindByLine(ctx, from.ID, to.ID, req.Period.Name)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 && !existing[len(existing)-1].Terminal() {
		return nil, apperr.ErrInvalidState(fmt.Sprintf(
			"allocation line already open for period %q between %s and %s", req.Period.Name, from.ID, to.ID))
	}

	balance, err := w.balances.Recompute(ctx, from.ID)
	if err != nil {
		return nil, err
	}
	if req.HourAmount > balance.AvailableHours {
		return nil, apperr.ErrInsufficientHours(from.ID, req.HourAmount, balance.AvailableHours)
	}

	period := domain.AllocationPeriod{Name: req.Period.Name, Start: req.Period.Start, End: req.Period.End}
	event := domain.NewCreatedEvent(from.ID, to.ID, req.HourAmount, period, req.PerformedBy, req.Notes)
	stored, err := w.ledger.Append(ctx, event)
	if err != nil {
		return nil, err
	}
	if err := w.settleBalances(ctx, from.ID, to.ID); err != nil {
		return nil, err
	}

	logger.LogAllocationAction(ctx, w.log, "create", stored, req.PerformedBy)
	return stored, nil
}

// ModifyAllocation supersedes the chain's latest event with a new hour amount.
// Capacity is re-checked only when the change grows the line.
func (w *Workflow) ModifyAllocation(ctx context.Context, req inbound.ModifyAllocationRequest) (*domain.AllocationEvent, error) {
	if req.EventID == "" {
		return nil, apperr.ErrInvalidRequest("event id is required")
	}
	if req.NewHourAmount <= 0 {
		return nil, apperr.ErrInvalidRequest(fmt.Sprintf("new hour amount must be positive, got %.2f", req.NewHourAmount))
	}
	if req.PerformedBy == "" {
		return nil, apperr.ErrInvalidRequest("performed_by is required")
	}

	anchor, err := w.events.FindByID(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	unlock := w.locks.lockPair(anchor.FromEntityID, anchor.ToEntityID)
	defer unlock()

	if err := w.requireLatestLive(ctx, anchor); err != nil {
		return nil, err
	}

	delta := req.NewHourAmount - anchor.AfterState.HourAmount
	if delta > 0 {
		balance, err := w.balances.Recompute(ctx, anchor.FromEntityID)
		if err != nil {
			return nil, err
		}
		if delta > balance.AvailableHours {
			return nil, apperr.ErrInsufficientHours(anchor.FromEntityID, delta, balance.AvailableHours)
		}
	} else if delta < 0 {
		if err := w.requireRecipientHeadroom(ctx, anchor.ToEntityID, -delta); err != nil {
			return nil, err
		}
	}

	event := domain.NewModifiedEvent(anchor, req.NewHourAmount, req.PerformedBy, req.Notes)
	stored, err := w.ledger.Append(ctx, event)
	if err != nil {
		return nil, err
	}
	if err := w.settleBalances(ctx, anchor.FromEntityID, anchor.ToEntityID); err != nil {
		return nil, err
	}

	logger.LogAllocationAction(ctx, w.log, "modify", stored, req.PerformedBy)
	return stored, nil
}

// RevokeAllocation returns revoked hours to the allocator. The hours come
// back purely through balance recomputation, never by direct mutation.
func (w *Workflow) RevokeAllocation(ctx context.Context, req inbound.RevokeAllocationRequest) (*domain.AllocationEvent, error) {
	if req.EventID == "" {
		return nil, apperr.ErrInvalidRequest("event id is required")
	}
	if req.RevokeAmount <= 0 {
		return nil, apperr.ErrInvalidRequest(fmt.Sprintf("revoke amount must be positive, got %.2f", req.RevokeAmount))
	}
	if req.PerformedBy == "" {
		return nil, apperr.ErrInvalidRequest("performed_by is required")
	}

	anchor, err := w.events.FindByID(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	unlock := w.locks.lockPair(anchor.FromEntityID, anchor.ToEntityID)
	defer unlock()

	if err := w.requireLatestLive(ctx, anchor); err != nil {
		return nil, err
	}

	if req.RevokeAmount > anchor.AfterState.HourAmount {
		return nil, apperr.ErrInvalidEvent(fmt.Sprintf(
			"revoke amount %.2f exceeds remaining %.2f", req.RevokeAmount, anchor.AfterState.HourAmount), nil)
	}
	if err := w.requireRecipientHeadroom(ctx, anchor.ToEntityID, req.RevokeAmount); err != nil {
		return nil, err
	}

	event := domain.NewRevokedEvent(anchor, req.RevokeAmount, req.PerformedBy, req.Notes)
	stored, err := w.ledger.Append(ctx, event)
	if err != nil {
		return nil, err
	}
	if err := w.settleBalances(ctx, anchor.FromEntityID, anchor.ToEntityID); err != nil {
		return nil, err
	}

	logger.LogAllocationAction(ctx, w.log, "revoke", stored, req.PerformedBy)
	return stored, nil
}

// ExpireAllocation terminates a lapsed line on behalf of the system. The call
// accepts any event in the chain and is idempotent: expiring an expired line
// returns its terminal event without a new append. A line whose hours the
// recipient has re-allocated downstream is held open until those lines are
// revoked.
func (w *Workflow) ExpireAllocation(ctx context.Context, eventID string) (*domain.AllocationEvent, error) {
	if eventID == "" {
		return nil, apperr.ErrInvalidRequest("event id is required")
	}

	anchor, err := w.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	unlock := w.locks.lockPair(anchor.FromEntityID, anchor.ToEntityID)
	defer unlock()

	latest, err := w.ledger.Latest(ctx, anchor.ID)
	if err != nil {
		return nil, err
	}
	if latest.Terminal() {
		return latest, nil
	}
	if err := w.requireRecipientHeadroom(ctx, latest.ToEntityID, latest.AfterState.HourAmount); err != nil {
		return nil, err
	}

	event := domain.NewExpiredEvent(latest)
	stored, err := w.ledger.Append(ctx, event)
	if err != nil {
		return nil, err
	}
	if err := w.settleBalances(ctx, latest.FromEntityID, latest.ToEntityID); err != nil {
		return nil, err
	}

	logger.LogAllocationAction(ctx, w.log, "expire", stored, domain.SystemActor)
	return stored, nil
}

// RelatedEvents returns the full causal chain containing eventID
func (w *Workflow) RelatedEvents(ctx context.Context, eventID string) ([]*domain.AllocationEvent, error) {
	return w.timeline.RelatedEvents(ctx, eventID)
}

// requireLatestLive rejects operations anchored on a superseded or terminal
// event. A superseded anchor means the caller lost a race and must re-read.
func (w *Workflow) requireLatestLive(ctx context.Context, anchor *domain.AllocationEvent) error {
	successors, err := w.events.FindSuccessors(ctx, anchor.ID)
	if err != nil {
		return err
	}
	if len(successors) > 0 {
		return apperr.ErrConcurrentModification(fmt.Sprintf(
			"event %s already superseded by %s", anchor.ID, successors[0].ID))
	}
	if anchor.Terminal() {
		return apperr.ErrInvalidState(fmt.Sprintf(
			"allocation line is terminal (%s with %.2f hours remaining)",
			anchor.ActionType, anchor.AfterState.HourAmount))
	}
	return nil
}

// requireRecipientHeadroom rejects a reduction the recipient cannot absorb.
// Hours the recipient has already re-allocated downstream cannot be pulled
// back upstream; the downstream lines must be revoked first, or replay would
// drive the recipient's balance negative.
func (w *Workflow) requireRecipientHeadroom(ctx context.Context, toID string, reduction float64) error {
	balance, err := w.balances.Recompute(ctx, toID)
	if err != nil {
		return err
	}
	if reduction > balance.AvailableHours {
		return apperr.ErrInvalidState(fmt.Sprintf(
			"recipient %s has re-allocated these hours downstream (reduction %.2f exceeds available %.2f); revoke its outbound lines first",
			toID, reduction, balance.AvailableHours))
	}
	return nil
}

// settleBalances recomputes and stores the balances of the affected entities
func (w *Workflow) settleBalances(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		balance, err := w.balances.Recompute(ctx, id)
		if err != nil {
			return err
		}
		if err := w.entities.ApplyBalance(ctx, id, balance); err != nil {
			return err
		}
	}
	return nil
}
