package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/pkg/database"
)

// WhatIfRepository persists passed signals in Postgres
// ⭐ SSOT: what_if table is accessed here only
type WhatIfRepository struct {
	pool *pgxpool.Pool
}

// NewWhatIfRepository creates a new what-if repository
func NewWhatIfRepository(pool *pgxpool.Pool) *WhatIfRepository {
	return &WhatIfRepository{pool: pool}
}

var _ contracts.WhatIfRepository = (*WhatIfRepository)(nil)

const whatIfColumns = `
	id, signal_id, symbol, action, decision, price_at_pass,
	current_price, hypothetical_pnl, hypothetical_pnl_pct, created_at, updated_at`

func scanWhatIf(row pgx.Row) (*contracts.WhatIf, error) {
	var w contracts.WhatIf
	var action, decision string
	err := row.Scan(
		&w.ID, &w.SignalID, &w.Symbol, &action, &decision, &w.PriceAtPass,
		&w.CurrentPrice, &w.HypotheticalPnL, &w.HypotheticalPnLPct, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	w.Action = contracts.SignalAction(action)
	w.Decision = contracts.SignalStatus(decision)
	return &w, nil
}

// Record inserts a new record; a signal already tracked is a conflict.
func (r *WhatIfRepository) Record(ctx context.Context, w *contracts.WhatIf) error {
	query := `
		INSERT INTO what_if (signal_id, symbol, action, decision, price_at_pass, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id
	`

	err := database.Conn(ctx, r.pool).QueryRow(ctx, query,
		w.SignalID, w.Symbol, string(w.Action), string(w.Decision), w.PriceAtPass, w.CreatedAt,
	).Scan(&w.ID)
	if database.IsUniqueViolation(err, "") {
		return fmt.Errorf("what-if for signal %d: %w", w.SignalID, contracts.ErrStoreConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to record what-if: %w", err)
	}
	w.UpdatedAt = w.CreatedAt
	return nil
}

// List returns records newest first, optionally for one decision.
func (r *WhatIfRepository) List(ctx context.Context, decision *contracts.SignalStatus) ([]*contracts.WhatIf, error) {
	query := `SELECT ` + whatIfColumns + ` FROM what_if`
	var args []any
	if decision != nil {
		query += ` WHERE decision = $1`
		args = append(args, string(*decision))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query what-if: %w", err)
	}
	defer rows.Close()

	var out []*contracts.WhatIf
	for rows.Next() {
		w, err := scanWhatIf(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan what-if: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// UpdatePrice stores the latest price and the hypothetical result.
func (r *WhatIfRepository) UpdatePrice(ctx context.Context, id int64, currentPrice, pnl, pnlPct float64, at time.Time) error {
	query := `
		UPDATE what_if
		SET current_price = $2, hypothetical_pnl = $3, hypothetical_pnl_pct = $4, updated_at = $5
		WHERE id = $1
	`

	tag, err := database.Conn(ctx, r.pool).Exec(ctx, query, id, currentPrice, pnl, pnlPct, at)
	if err != nil {
		return fmt.Errorf("failed to update what-if %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("what-if %d: %w", id, contracts.ErrNotFound)
	}
	return nil
}
