package allocation

import (
	"context"
	"fmt"

	"github.com/spacedesk/spacedesk/application/port/outbound"
	"github.com/spacedesk/spacedesk/domain"
	"github.com/spacedesk/spacedesk/domain/apperr"
)

// BalanceCalculator derives an entity's hour figures by replaying its ledger
// lines. The ledger is the sole source of truth: stored balances are a cache
// of what Recompute returns.
type BalanceCalculator struct {
	entities outbound.EntityRepository
	events   outbound.EventRepository
}

// NewBalanceCalculator creates a calculator over the given stores
func NewBalanceCalculator(entities outbound.EntityRepository, events outbound.EventRepository) *BalanceCalculator {
	return &BalanceCalculator{entities: entities, events: events}
}

// Recompute replays the entity's ledger lines and returns its current
// balance. A replay that yields a negative figure is reported as a balance
// inconsistency, never clamped.
func (c *BalanceCalculator) Recompute(ctx context.Context, entityID string) (domain.Balance, error) {
	entity, err := c.entities.FindByID(ctx, entityID)
	if err != nil {
		return domain.Balance{}, err
	}

	received, err := c.receivedHours(ctx, entity)
	if err != nil {
		return domain.Balance{}, err
	}

	allocated, err := c.allocatedHours(ctx, entity)
	if err != nil {
		return domain.Balance{}, err
	}

	// No operation writes reserved hours today; the figure stays in the
	// conservation arithmetic for the pending-approval workflow to come.
	reserved := entity.Balance.HoursReserved

	available := received - allocated - reserved
	if received < 0 || allocated < 0 || reserved < 0 || available < 0 {
		return domain.Balance{}, apperr.ErrBalanceInconsistency(entityID, fmt.Sprintf(
			"Received: %.2f, Allocated: %.2f, Reserved: %.2f, Available: %.2f",
			received, allocated, reserved, available))
	}

	return domain.Balance{
		HoursReceived:  received,
		HoursAllocated: allocated,
		HoursReserved:  reserved,
		AvailableHours: available,
	}, nil
}

// receivedHours sums, across every line where the entity is the recipient,
// the latest event's after-state amount. Expired lines contribute zero
// because the terminal event zeroes the amount. The root holds provisioned
// capacity instead of ledger-received hours.
func (c *BalanceCalculator) receivedHours(ctx context.Context, entity *domain.Entity) (float64, error) {
	if entity.IsRoot() {
		return entity.Balance.HoursReceived, nil
	}
	latest, err := c.events.LatestByRecipient(ctx, entity.ID)
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, ev := range latest {
		sum += ev.AfterState.HourAmount
	}
	return sum, nil
}

// allocatedHours sums the hours currently held downstream: the latest amount
// of every line this entity allocated whose recipient is still active.
func (c *BalanceCalculator) allocatedHours(ctx context.Context, entity *domain.Entity) (float64, error) {
	latest, err := c.events.LatestByAllocator(ctx, entity.ID)
	if err != nil {
		return 0, err
	}
	var sum float64
	statuses := make(map[string]domain.EntityStatus)
	for _, ev := range latest {
		if ev.AfterState.HourAmount == 0 {
			continue
		}
		status, ok := statuses[ev.ToEntityID]
		if !ok {
			recipient, err := c.entities.FindByID(ctx, ev.ToEntityID)
			if err != nil {
				return 0, err
			}
			status = recipient.Status
			statuses[ev.ToEntityID] = status
		}
		if status != domain.EntityStatusActive {
			continue
		}
		sum += ev.AfterState.HourAmount
	}
	return sum, nil
}
