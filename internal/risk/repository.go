package risk

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/pkg/database"
)

// Repository persists risk limits and the kill switch
// ⭐ SSOT: risk_limits / kill_switch tables are accessed here only
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new risk repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ contracts.RiskRepository = (*Repository)(nil)

// Limits returns every row of the limit table.
func (r *Repository) Limits(ctx context.Context) ([]contracts.RiskLimit, error) {
	query := `SELECT limit_type, value, floor, enabled, updated_at FROM risk_limits ORDER BY limit_type`

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk limits: %w", err)
	}
	defer rows.Close()

	var out []contracts.RiskLimit
	for rows.Next() {
		var l contracts.RiskLimit
		var lt string
		if err := rows.Scan(&lt, &l.Value, &l.Floor, &l.Enabled, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan risk limit: %w", err)
		}
		l.Type = contracts.LimitType(lt)
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpsertLimit inserts or replaces one limit.
func (r *Repository) UpsertLimit(ctx context.Context, l contracts.RiskLimit) error {
	query := `
		INSERT INTO risk_limits (limit_type, value, floor, enabled, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (limit_type) DO UPDATE SET
			value = EXCLUDED.value,
			floor = EXCLUDED.floor,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := database.Conn(ctx, r.pool).Exec(ctx, query,
		string(l.Type), l.Value, l.Floor, l.Enabled, l.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert risk limit: %w", err)
	}
	return nil
}

// KillSwitch reads the single kill switch row. FOR SHARE so a concurrent
// activation is observed by the surrounding transaction.
func (r *Repository) KillSwitch(ctx context.Context) (*contracts.KillSwitch, error) {
	query := `
		SELECT active, reason, activated_by, activated_at, deactivated_at, updated_at
		FROM kill_switch
		WHERE id = 1
		FOR SHARE
	`

	var ks contracts.KillSwitch
	err := database.Conn(ctx, r.pool).QueryRow(ctx, query).Scan(
		&ks.Active, &ks.Reason, &ks.ActivatedBy, &ks.ActivatedAt, &ks.DeactivatedAt, &ks.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.NewConfigError("kill_switch", "kill switch row missing; run migrate")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read kill switch: %w", err)
	}
	return &ks, nil
}

// SaveKillSwitch overwrites the single kill switch row.
func (r *Repository) SaveKillSwitch(ctx context.Context, ks *contracts.KillSwitch) error {
	query := `
		INSERT INTO kill_switch (id, active, reason, activated_by, activated_at, deactivated_at, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			active = EXCLUDED.active,
			reason = EXCLUDED.reason,
			activated_by = EXCLUDED.activated_by,
			activated_at = EXCLUDED.activated_at,
			deactivated_at = EXCLUDED.deactivated_at,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := database.Conn(ctx, r.pool).Exec(ctx, query,
		ks.Active, ks.Reason, ks.ActivatedBy, ks.ActivatedAt, ks.DeactivatedAt, ks.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to save kill switch: %w", err)
	}
	return nil
}
