package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPeriod() AllocationPeriod {
	return AllocationPeriod{
		Name:  "Jan 2024",
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC),
	}
}

func TestCreatedEventShape(t *testing.T) {
	event := NewCreatedEvent("owner-1", "dev-1", 500, testPeriod(), "admin", "initial grant")
	require.NoError(t, event.ValidateShape())
	assert.Nil(t, event.BeforeState)
	assert.Nil(t, event.RelatedEventID)
	assert.Equal(t, 500.0, event.AfterState.HourAmount)
	assert.False(t, event.Terminal())
}

func TestCreatedEventRejectsBeforeState(t *testing.T) {
	event := NewCreatedEvent("owner-1", "dev-1", 500, testPeriod(), "admin", "")
	event.BeforeState = &EventState{HourAmount: 100, Period: testPeriod()}
	assert.ErrorIs(t, event.ValidateShape(), ErrEventShape)
}

func TestModifiedEventCarriesPredecessorState(t *testing.T) {
	created := NewCreatedEvent("owner-1", "dev-1", 500, testPeriod(), "admin", "")
	created.ID = "ev-1"

	modified := NewModifiedEvent(created, 650, "admin", "raised")
	require.NoError(t, modified.ValidateShape())
	require.NotNil(t, modified.BeforeState)
	assert.Equal(t, 500.0, modified.BeforeState.HourAmount)
	assert.Equal(t, 650.0, modified.AfterState.HourAmount)
	require.NotNil(t, modified.RelatedEventID)
	assert.Equal(t, "ev-1", *modified.RelatedEventID)
}

func TestModifiedEventRequiresPredecessor(t *testing.T) {
	event := &AllocationEvent{
		ActionType:   ActionModified,
		FromEntityID: "owner-1",
		ToEntityID:   "dev-1",
		AfterState:   EventState{HourAmount: 100, Period: testPeriod()},
	}
	assert.ErrorIs(t, event.ValidateShape(), ErrEventShape)
}

func TestRevokedEventCannotIncreaseAmount(t *testing.T) {
	created := NewCreatedEvent("owner-1", "dev-1", 500, testPeriod(), "admin", "")
	created.ID = "ev-1"

	revoked := NewRevokedEvent(created, 200, "admin", "")
	require.NoError(t, revoked.ValidateShape())
	assert.Equal(t, 300.0, revoked.AfterState.HourAmount)
	assert.False(t, revoked.Terminal())

	revoked.AfterState.HourAmount = 600
	assert.ErrorIs(t, revoked.ValidateShape(), ErrEventShape)
}

func TestFullRevokeIsTerminal(t *testing.T) {
	created := NewCreatedEvent("owner-1", "dev-1", 500, testPeriod(), "admin", "")
	created.ID = "ev-1"

	revoked := NewRevokedEvent(created, 500, "admin", "drained")
	require.NoError(t, revoked.ValidateShape())
	assert.True(t, revoked.Terminal())
}

func TestExpiredEventZeroesTheLine(t *testing.T) {
	created := NewCreatedEvent("owner-1", "dev-1", 500, testPeriod(), "admin", "")
	created.ID = "ev-1"

	expired := NewExpiredEvent(created)
	require.NoError(t, expired.ValidateShape())
	assert.Equal(t, 0.0, expired.AfterState.HourAmount)
	assert.Equal(t, LineStatusExpired, expired.AfterState.Status)
	assert.Equal(t, SystemActor, expired.PerformedBy)
	assert.True(t, expired.Terminal())
}

func TestExpiredEventMustZeroAmount(t *testing.T) {
	created := NewCreatedEvent("owner-1", "dev-1", 500, testPeriod(), "admin", "")
	created.ID = "ev-1"

	expired := NewExpiredEvent(created)
	expired.AfterState.HourAmount = 10
	assert.ErrorIs(t, expired.ValidateShape(), ErrEventShape)
}

func TestNegativeAmountRejected(t *testing.T) {
	event := NewCreatedEvent("owner-1", "dev-1", -5, testPeriod(), "admin", "")
	assert.ErrorIs(t, event.ValidateShape(), ErrEventShape)
}

func TestEventStateEquivalentToSurvivesLocationChanges(t *testing.T) {
	period := testPeriod()
	state := EventState{HourAmount: 500, Period: period}

	shifted := state
	shifted.Period.Start = period.Start.In(time.FixedZone("UTC+0", 0))
	assert.True(t, state.EquivalentTo(shifted))

	different := state
	different.HourAmount = 501
	assert.False(t, state.EquivalentTo(different))
}

func TestPeriodLapsedAt(t *testing.T) {
	period := testPeriod()
	assert.False(t, period.LapsedAt(period.End))
	assert.True(t, period.LapsedAt(period.End.Add(time.Second)))
	assert.False(t, AllocationPeriod{Name: "open-ended"}.LapsedAt(time.Now()))
}
