package allocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacedesk/spacedesk/application/port/inbound"
	"github.com/spacedesk/spacedesk/domain"
	"github.com/spacedesk/spacedesk/domain/apperr"
)

// A ledger that grants more downstream than the entity ever received is
// corrupt data: replay reports it instead of clamping the figures.
func TestRecomputeSurfacesBalanceInconsistency(t *testing.T) {
	f := newFixture(t)
	owner := f.createOwner(t, 1000)
	dev := f.createChild(t, "Acme Dev", domain.EntityTypeDeveloper, owner.ID)
	emp := f.createChild(t, "Worker", domain.EntityTypeEmployee, dev.ID)
	ctx := context.Background()

	_, err := f.workflow.CreateAllocation(ctx, inbound.CreateAllocationRequest{
		FromEntityID: owner.ID, ToEntityID: dev.ID, HourAmount: 500,
		Period: janPeriod(), PerformedBy: "admin",
	})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)

	// Forge an over-grant directly in the store, bypassing the capacity check.
	period := domain.AllocationPeriod{
		Name:  "Jan 2024",
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC),
	}
	forged := domain.NewCreatedEvent(dev.ID, emp.ID, 600, period, "intruder", "")
	forged.ID = "forged-1"
	forged.Timestamp = f.clock.Now()
	require.NoError(t, f.events.Append(ctx, forged))

	_, err = f.workflow.EntitySummary(ctx, dev.ID)
	assert.True(t, apperr.HasCode(err, apperr.ErrCodeBalanceInconsistency), "got: %v", err)
}

// Reserved hours are carried through the conservation arithmetic even though
// no operation writes them yet.
func TestRecomputePreservesReservedHours(t *testing.T) {
	f := newFixture(t)
	owner := f.createOwner(t, 1000)
	dev := f.createChild(t, "Acme Dev", domain.EntityTypeDeveloper, owner.ID)
	ctx := context.Background()

	_, err := f.workflow.CreateAllocation(ctx, inbound.CreateAllocationRequest{
		FromEntityID: owner.ID, ToEntityID: dev.ID, HourAmount: 500,
		Period: janPeriod(), PerformedBy: "admin",
	})
	require.NoError(t, err)

	require.NoError(t, f.entities.ApplyBalance(ctx, dev.ID, domain.Balance{
		HoursReceived:  500,
		HoursReserved:  100,
		AvailableHours: 400,
	}))

	summary := f.summary(t, dev.ID)
	assert.Equal(t, 500.0, summary.HoursReceived)
	assert.Equal(t, 100.0, summary.HoursReserved)
	assert.Equal(t, 400.0, summary.AvailableHours)
}

func TestRecomputeDefaultsReservedToZero(t *testing.T) {
	f := newFixture(t)
	owner := f.createOwner(t, 1000)
	dev := f.createChild(t, "Acme Dev", domain.EntityTypeDeveloper, owner.ID)
	ctx := context.Background()

	_, err := f.workflow.CreateAllocation(ctx, inbound.CreateAllocationRequest{
		FromEntityID: owner.ID, ToEntityID: dev.ID, HourAmount: 500,
		Period: janPeriod(), PerformedBy: "admin",
	})
	require.NoError(t, err)

	assert.Equal(t, 0.0, f.summary(t, dev.ID).HoursReserved)
	assert.Equal(t, 0.0, f.summary(t, owner.ID).HoursReserved)
}

// Lines held by entities that are no longer active drop out of the
// allocator's outstanding total.
func TestRecomputeExcludesInactiveRecipients(t *testing.T) {
	f := newFixture(t)
	owner := f.createOwner(t, 1000)
	dev := f.createChild(t, "Acme Dev", domain.EntityTypeDeveloper, owner.ID)
	ctx := context.Background()

	_, err := f.workflow.CreateAllocation(ctx, inbound.CreateAllocationRequest{
		FromEntityID: owner.ID, ToEntityID: dev.ID, HourAmount: 500,
		Period: janPeriod(), PerformedBy: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, 500.0, f.summary(t, owner.ID).HoursAllocated)

	require.NoError(t, f.entities.UpdateStatus(ctx, dev.ID, domain.EntityStatusInactive))

	summary := f.summary(t, owner.ID)
	assert.Equal(t, 0.0, summary.HoursAllocated)
	assert.Equal(t, 1000.0, summary.AvailableHours)
}

// The root's received hours are provisioned capacity, untouched by replay.
func TestRecomputeKeepsRootProvisionedCapacity(t *testing.T) {
	f := newFixture(t)
	owner := f.createOwner(t, 1000)
	dev := f.createChild(t, "Acme Dev", domain.EntityTypeDeveloper, owner.ID)
	ctx := context.Background()

	_, err := f.workflow.CreateAllocation(ctx, inbound.CreateAllocationRequest{
		FromEntityID: owner.ID, ToEntityID: dev.ID, HourAmount: 400,
		Period: janPeriod(), PerformedBy: "admin",
	})
	require.NoError(t, err)

	summary := f.summary(t, owner.ID)
	assert.Equal(t, 1000.0, summary.HoursReceived)
	assert.Equal(t, 400.0, summary.HoursAllocated)
	assert.Equal(t, 600.0, summary.AvailableHours)
}
