package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/spacedesk/spacedesk/application/port/outbound"
	"github.com/spacedesk/spacedesk/domain"
	"github.com/spacedesk/spacedesk/domain/apperr"
)

// EntityRepository implements the registry store on PostgreSQL
type EntityRepository struct{ db *sql.DB }

// NewEntityRepository creates an entity repository over db
func NewEntityRepository(db *sql.DB) outbound.EntityRepository {
	return &EntityRepository{db: db}
}

const entityColumns = `id, name, type, parent_id, status,
	hours_received, hours_allocated, hours_reserved, available_hours,
	created_at, updated_at`

func (r *EntityRepository) Create(ctx context.Context, entity *domain.Entity) error {
	query := `
        INSERT INTO entities (` + entityColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `
	var parentID sql.NullString
	if entity.ParentID != nil {
		parentID = sql.NullString{String: *entity.ParentID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		entity.ID,
		entity.Name,
		string(entity.Type),
		parentID,
		string(entity.Status),
		entity.Balance.HoursReceived,
		entity.Balance.HoursAllocated,
		entity.Balance.HoursReserved,
		entity.Balance.AvailableHours,
		entity.CreatedAt,
		entity.UpdatedAt,
	)
	if err != nil {
		// idx_entities_owner makes the singleton root durable against racing
		// registrations.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation && pqErr.Constraint == "idx_entities_owner" {
			if owners, ferr := r.FindByType(ctx, domain.EntityTypeOwner); ferr == nil && len(owners) > 0 {
				return apperr.ErrOwnerExists(owners[0].ID)
			}
			return apperr.ErrOwnerExists("unknown")
		}
		return apperr.ErrDatabaseError("create entity", fmt.Errorf("failed to create entity: %w", err))
	}
	return nil
}

func (r *EntityRepository) FindByID(ctx context.Context, id string) (*domain.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE id = $1`
	entity, err := scanEntity(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrEntityNotFound(id)
		}
		return nil, apperr.ErrDatabaseError("find entity", err)
	}
	return entity, nil
}

func (r *EntityRepository) FindByType(ctx context.Context, entityType domain.EntityType) ([]*domain.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE type = $1 ORDER BY created_at`
	return r.queryEntities(ctx, query, string(entityType))
}

func (r *EntityRepository) FindChildren(ctx context.Context, parentID string) ([]*domain.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE parent_id = $1 ORDER BY created_at`
	return r.queryEntities(ctx, query, parentID)
}

func (r *EntityRepository) List(ctx context.Context) ([]*domain.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities ORDER BY created_at`
	return r.queryEntities(ctx, query)
}

func (r *EntityRepository) ApplyBalance(ctx context.Context, id string, balance domain.Balance) error {
	query := `
        UPDATE entities
        SET hours_received = $2, hours_allocated = $3, hours_reserved = $4,
            available_hours = $5, updated_at = NOW()
        WHERE id = $1
    `
	result, err := r.db.ExecContext(ctx, query, id,
		balance.HoursReceived, balance.HoursAllocated, balance.HoursReserved, balance.AvailableHours)
	if err != nil {
		return apperr.ErrDatabaseError("apply balance", fmt.Errorf("failed to apply balance: %w", err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperr.ErrDatabaseError("apply balance", fmt.Errorf("failed to get rows affected: %w", err))
	}
	if rowsAffected == 0 {
		return apperr.ErrEntityNotFound(id)
	}
	return nil
}

func (r *EntityRepository) UpdateStatus(ctx context.Context, id string, status domain.EntityStatus) error {
	query := `UPDATE entities SET status = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, string(status))
	if err != nil {
		return apperr.ErrDatabaseError("update status", fmt.Errorf("failed to update status: %w", err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperr.ErrDatabaseError("update status", fmt.Errorf("failed to get rows affected: %w", err))
	}
	if rowsAffected == 0 {
		return apperr.ErrEntityNotFound(id)
	}
	return nil
}

func (r *EntityRepository) queryEntities(ctx context.Context, query string, args ...interface{}) ([]*domain.Entity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.ErrDatabaseError("query entities", fmt.Errorf("failed to query entities: %w", err))
	}
	defer rows.Close()

	var entities []*domain.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, apperr.ErrDatabaseError("scan entity", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.ErrDatabaseError("iterate entities", fmt.Errorf("error iterating entities: %w", err))
	}
	return entities, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row rowScanner) (*domain.Entity, error) {
	var entity domain.Entity
	var parentID sql.NullString
	err := row.Scan(
		&entity.ID,
		&entity.Name,
		&entity.Type,
		&parentID,
		&entity.Status,
		&entity.Balance.HoursReceived,
		&entity.Balance.HoursAllocated,
		&entity.Balance.HoursReserved,
		&entity.Balance.AvailableHours,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		entity.ParentID = &parentID.String
	}
	return &entity, nil
}
