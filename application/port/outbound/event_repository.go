package outbound

import (
	"context"
	"time"

	"github.com/spacedesk/spacedesk/domain"
)

// EventRepository is the append-only store behind the allocation ledger.
// Implementations maintain two secondary indexes: one on RelatedEventID for
// forward-chain lookup, and one on (FromEntityID, ToEntityID, Period) to
// locate the line of a relationship. Append must reject a second successor for
// the same predecessor so that concurrent chain updates cannot fork silently.
type EventRepository interface {
	Append(ctx context.Context, event *domain.AllocationEvent) error
	FindByID(ctx context.Context, id string) (*domain.AllocationEvent, error)

	// FindSuccessors returns the events whose RelatedEventID equals eventID,
	// oldest first. Under normal workflow there is at most one.
	FindSuccessors(ctx context.Context, eventID string) ([]*domain.AllocationEvent, error)

	// FindByLine returns every event of one allocation line, oldest first.
	FindByLine(ctx context.Context, fromID, toID, periodName string) ([]*domain.AllocationEvent, error)

	// LatestByRecipient returns the latest event of each line where the entity
	// is the recipient.
	LatestByRecipient(ctx context.Context, toID string) ([]*domain.AllocationEvent, error)

	// LatestByAllocator returns the latest event of each line where the entity
	// is the allocator.
	LatestByAllocator(ctx context.Context, fromID string) ([]*domain.AllocationEvent, error)

	// FindLapsedLines returns the latest event of every non-expired line whose
	// allocation period ended before asOf. Used by the expiration sweep.
	FindLapsedLines(ctx context.Context, asOf time.Time) ([]*domain.AllocationEvent, error)
}
