package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/pkg/database"
)

// Repository persists audit entries in Postgres
// ⭐ SSOT: audit_log is written here only. No UPDATE or DELETE exists.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new audit repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectColumns = `id, created_at, actor, action, details, entity_type, entity_id, corrects_id`

// Append inserts e and fills its ID and CreatedAt.
func (r *Repository) Append(ctx context.Context, e *contracts.AuditEntry) error {
	query := `
		INSERT INTO audit_log (actor, action, details, entity_type, entity_id, corrects_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	details := e.Details
	if len(details) == 0 {
		details = []byte("{}")
	}

	err := database.Conn(ctx, r.pool).QueryRow(ctx, query,
		string(e.Actor), e.Action, details, e.EntityType, e.EntityID, e.CorrectsID,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// Get retrieves one entry.
func (r *Repository) Get(ctx context.Context, id int64) (*contracts.AuditEntry, error) {
	query := `SELECT ` + selectColumns + ` FROM audit_log WHERE id = $1`

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("audit entry %d: %w", id, contracts.ErrNotFound)
	}
	return entries[0], nil
}

// ByEntity returns the entries for one entity in insertion order.
func (r *Repository) ByEntity(ctx context.Context, entityType string, entityID int64) ([]*contracts.AuditEntry, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY id
	`

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	return scanEntries(rows)
}

// Recent returns the newest entries first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]*contracts.AuditEntry, error) {
	query := `SELECT ` + selectColumns + ` FROM audit_log ORDER BY id DESC LIMIT $1`

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent audit entries: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]*contracts.AuditEntry, error) {
	defer rows.Close()

	var entries []*contracts.AuditEntry
	for rows.Next() {
		var e contracts.AuditEntry
		var actor string
		if err := rows.Scan(&e.ID, &e.CreatedAt, &actor, &e.Details, &e.EntityType, &e.EntityID, &e.CorrectsID); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Actor = contracts.Actor(actor)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}
	return entries, nil
}
