package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacedesk/spacedesk/domain"
	"github.com/spacedesk/spacedesk/domain/apperr"
)

func storedEvent(id, fromID, toID string, amount float64, periodName string, end time.Time) *domain.AllocationEvent {
	event := domain.NewCreatedEvent(fromID, toID, amount, domain.AllocationPeriod{
		Name:  periodName,
		Start: end.AddDate(0, -1, 0),
		End:   end,
	}, "admin", "")
	event.ID = id
	event.Timestamp = end.AddDate(0, -1, 0)
	return event
}

func successorOf(prev *domain.AllocationEvent, id string, amount float64) *domain.AllocationEvent {
	event := domain.NewModifiedEvent(prev, amount, "admin", "")
	event.ID = id
	event.Timestamp = prev.Timestamp.Add(time.Minute)
	return event
}

func TestAppendAndFindByID(t *testing.T) {
	repo := NewEventRepository()
	ctx := context.Background()
	end := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)

	event := storedEvent("ev-1", "owner", "dev", 500, "Jan 2024", end)
	require.NoError(t, repo.Append(ctx, event))

	got, err := repo.FindByID(ctx, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, 500.0, got.AfterState.HourAmount)

	// The store hands out copies, not aliases.
	got.AfterState.HourAmount = 999
	again, err := repo.FindByID(ctx, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, 500.0, again.AfterState.HourAmount)

	_, err = repo.FindByID(ctx, "nope")
	assert.True(t, apperr.HasCode(err, apperr.ErrCodeEventNotFound))
}

func TestAppendRejectsDuplicateID(t *testing.T) {
	repo := NewEventRepository()
	ctx := context.Background()
	end := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)

	require.NoError(t, repo.Append(ctx, storedEvent("ev-1", "owner", "dev", 500, "Jan 2024", end)))
	err := repo.Append(ctx, storedEvent("ev-1", "owner", "dev", 100, "Jan 2024", end))
	assert.True(t, apperr.HasCode(err, apperr.ErrCodeInvalidEvent))
}

func TestAppendEnforcesSingleSuccessor(t *testing.T) {
	repo := NewEventRepository()
	ctx := context.Background()
	end := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)

	root := storedEvent("ev-1", "owner", "dev", 500, "Jan 2024", end)
	require.NoError(t, repo.Append(ctx, root))
	require.NoError(t, repo.Append(ctx, successorOf(root, "ev-2", 650)))

	err := repo.Append(ctx, successorOf(root, "ev-3", 700))
	assert.True(t, apperr.HasCode(err, apperr.ErrCodeConcurrentModification))

	successors, err := repo.FindSuccessors(ctx, "ev-1")
	require.NoError(t, err)
	require.Len(t, successors, 1)
	assert.Equal(t, "ev-2", successors[0].ID)
}

func TestFindByLineReturnsAppendOrder(t *testing.T) {
	repo := NewEventRepository()
	ctx := context.Background()
	end := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)

	root := storedEvent("ev-1", "owner", "dev", 500, "Jan 2024", end)
	require.NoError(t, repo.Append(ctx, root))
	require.NoError(t, repo.Append(ctx, successorOf(root, "ev-2", 650)))

	// Another period is another line.
	require.NoError(t, repo.Append(ctx, storedEvent("ev-3", "owner", "dev", 100, "Feb 2024", end.AddDate(0, 1, 0))))

	line, err := repo.FindByLine(ctx, "owner", "dev", "Jan 2024")
	require.NoError(t, err)
	require.Len(t, line, 2)
	assert.Equal(t, "ev-1", line[0].ID)
	assert.Equal(t, "ev-2", line[1].ID)
}

func TestLatestByRecipientAndAllocator(t *testing.T) {
	repo := NewEventRepository()
	ctx := context.Background()
	end := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)

	root := storedEvent("ev-1", "owner", "dev", 500, "Jan 2024", end)
	require.NoError(t, repo.Append(ctx, root))
	require.NoError(t, repo.Append(ctx, successorOf(root, "ev-2", 650)))
	require.NoError(t, repo.Append(ctx, storedEvent("ev-3", "owner", "emp", 100, "Jan 2024", end)))

	byRecipient, err := repo.LatestByRecipient(ctx, "dev")
	require.NoError(t, err)
	require.Len(t, byRecipient, 1)
	assert.Equal(t, "ev-2", byRecipient[0].ID)
	assert.Equal(t, 650.0, byRecipient[0].AfterState.HourAmount)

	byAllocator, err := repo.LatestByAllocator(ctx, "owner")
	require.NoError(t, err)
	assert.Len(t, byAllocator, 2)

	none, err := repo.LatestByAllocator(ctx, "dev")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFindLapsedLines(t *testing.T) {
	repo := NewEventRepository()
	ctx := context.Background()
	janEnd := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)
	febEnd := time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC)

	janRoot := storedEvent("ev-1", "owner", "dev", 500, "Jan 2024", janEnd)
	require.NoError(t, repo.Append(ctx, janRoot))
	require.NoError(t, repo.Append(ctx, storedEvent("ev-2", "owner", "emp", 100, "Feb 2024", febEnd)))

	// An expired chain head drops out of the lapsed set.
	doneRoot := storedEvent("ev-3", "owner", "corp", 50, "Jan 2024", janEnd)
	require.NoError(t, repo.Append(ctx, doneRoot))
	terminal := domain.NewExpiredEvent(doneRoot)
	terminal.ID = "ev-4"
	terminal.Timestamp = janEnd
	require.NoError(t, repo.Append(ctx, terminal))

	asOf := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
	lapsed, err := repo.FindLapsedLines(ctx, asOf)
	require.NoError(t, err)
	require.Len(t, lapsed, 1)
	assert.Equal(t, "ev-1", lapsed[0].ID)

	// Before any period closes, nothing is lapsed.
	lapsed, err = repo.FindLapsedLines(ctx, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, lapsed)
}
