package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/spacedesk/spacedesk/application/port/outbound"
	"github.com/spacedesk/spacedesk/domain"
	"github.com/spacedesk/spacedesk/domain/apperr"
)

// EventRepository implements the ledger store on PostgreSQL. The
// allocation_events table carries a unique partial index on related_event_id
// so a chain can never gain a second successor, and a composite index on
// (from_entity_id, to_entity_id, period_name) for line lookup.
type EventRepository struct{ db *sql.DB }

// NewEventRepository creates an event repository over db
func NewEventRepository(db *sql.DB) outbound.EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, action_type, from_entity_id, to_entity_id,
	period_name, period_start, period_end, performed_by, notes,
	before_hour_amount, before_status, after_hour_amount, after_status,
	related_event_id, created_at`

// uniqueViolation is the PostgreSQL error code for a unique index conflict
const uniqueViolation = "23505"

func (r *EventRepository) Append(ctx context.Context, event *domain.AllocationEvent) error {
	query := `
        INSERT INTO allocation_events (` + eventColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
    `
	var beforeAmount sql.NullFloat64
	var beforeStatus sql.NullString
	if event.BeforeState != nil {
		beforeAmount = sql.NullFloat64{Float64: event.BeforeState.HourAmount, Valid: true}
		if event.BeforeState.Status != "" {
			beforeStatus = sql.NullString{String: string(event.BeforeState.Status), Valid: true}
		}
	}
	var afterStatus sql.NullString
	if event.AfterState.Status != "" {
		afterStatus = sql.NullString{String: string(event.AfterState.Status), Valid: true}
	}
	var relatedEventID sql.NullString
	if event.RelatedEventID != nil {
		relatedEventID = sql.NullString{String: *event.RelatedEventID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		string(event.ActionType),
		event.FromEntityID,
		event.ToEntityID,
		event.Period.Name,
		event.Period.Start,
		event.Period.End,
		event.PerformedBy,
		event.Notes,
		beforeAmount,
		beforeStatus,
		event.AfterState.HourAmount,
		afterStatus,
		relatedEventID,
		event.Timestamp,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return apperr.ErrConcurrentModification(
				"event " + valueOr(event.RelatedEventID) + " already superseded")
		}
		return apperr.ErrDatabaseError("append event", fmt.Errorf("failed to append event: %w", err))
	}
	return nil
}

func (r *EventRepository) FindByID(ctx context.Context, id string) (*domain.AllocationEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM allocation_events WHERE id = $1`
	event, err := scanEvent(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrEventNotFound(id)
		}
		return nil, apperr.ErrDatabaseError("find event", err)
	}
	return event, nil
}

func (r *EventRepository) FindSuccessors(ctx context.Context, eventID string) ([]*domain.AllocationEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM allocation_events WHERE related_event_id = $1 ORDER BY created_at`
	return r.queryEvents(ctx, query, eventID)
}

func (r *EventRepository) FindByLine(ctx context.Context, fromID, toID, periodName string) ([]*domain.AllocationEvent, error) {
	query := `
        SELECT ` + eventColumns + ` FROM allocation_events
        WHERE from_entity_id = $1 AND to_entity_id = $2 AND period_name = $3
        ORDER BY created_at
    `
	return r.queryEvents(ctx, query, fromID, toID, periodName)
}

func (r *EventRepository) LatestByRecipient(ctx context.Context, toID string) ([]*domain.AllocationEvent, error) {
	query := `
        SELECT DISTINCT ON (from_entity_id, period_name) ` + eventColumns + `
        FROM allocation_events
        WHERE to_entity_id = $1
        ORDER BY from_entity_id, period_name, created_at DESC
    `
	return r.queryEvents(ctx, query, toID)
}

func (r *EventRepository) LatestByAllocator(ctx context.Context, fromID string) ([]*domain.AllocationEvent, error) {
	query := `
        SELECT DISTINCT ON (to_entity_id, period_name) ` + eventColumns + `
        FROM allocation_events
        WHERE from_entity_id = $1
        ORDER BY to_entity_id, period_name, created_at DESC
    `
	return r.queryEvents(ctx, query, fromID)
}

func (r *EventRepository) FindLapsedLines(ctx context.Context, asOf time.Time) ([]*domain.AllocationEvent, error) {
	query := `
        SELECT ` + eventColumns + ` FROM (
            SELECT DISTINCT ON (from_entity_id, to_entity_id, period_name) ` + eventColumns + `
            FROM allocation_events
            ORDER BY from_entity_id, to_entity_id, period_name, created_at DESC
        ) latest
        WHERE action_type <> 'EXPIRED' AND period_end < $1
    `
	return r.queryEvents(ctx, query, asOf)
}

func (r *EventRepository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]*domain.AllocationEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.ErrDatabaseError("query events", fmt.Errorf("failed to query events: %w", err))
	}
	defer rows.Close()

	var events []*domain.AllocationEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, apperr.ErrDatabaseError("scan event", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.ErrDatabaseError("iterate events", fmt.Errorf("error iterating events: %w", err))
	}
	return events, nil
}

func scanEvent(row rowScanner) (*domain.AllocationEvent, error) {
	var event domain.AllocationEvent
	var beforeAmount sql.NullFloat64
	var beforeStatus, afterStatus, relatedEventID sql.NullString
	err := row.Scan(
		&event.ID,
		&event.ActionType,
		&event.FromEntityID,
		&event.ToEntityID,
		&event.Period.Name,
		&event.Period.Start,
		&event.Period.End,
		&event.PerformedBy,
		&event.Notes,
		&beforeAmount,
		&beforeStatus,
		&event.AfterState.HourAmount,
		&afterStatus,
		&relatedEventID,
		&event.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	event.AfterState.Period = event.Period
	if afterStatus.Valid {
		event.AfterState.Status = domain.LineStatus(afterStatus.String)
	}
	if beforeAmount.Valid {
		before := domain.EventState{
			HourAmount: beforeAmount.Float64,
			Period:     event.Period,
		}
		if beforeStatus.Valid {
			before.Status = domain.LineStatus(beforeStatus.String)
		}
		event.BeforeState = &before
	}
	if relatedEventID.Valid {
		event.RelatedEventID = &relatedEventID.String
	}
	return &event, nil
}

func valueOr(s *string) string {
	if s == nil {
		return "?"
	}
	return *s
}
