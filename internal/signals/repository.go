package signals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/pkg/database"
)

// Repository persists signals in Postgres
// ⭐ SSOT: signals / signal_principles tables are accessed here only
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new signal repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ contracts.SignalRepository = (*Repository)(nil)

const signalColumns = `
	id, action, symbol, thesis_id, confidence, source, horizon, reasoning,
	size_pct, status, created_at, updated_at, decided_at, expired_at`

func scanSignal(row pgx.Row) (*contracts.Signal, error) {
	var s contracts.Signal
	var action, source, status string
	err := row.Scan(
		&s.ID, &action, &s.Symbol, &s.ThesisID, &s.Confidence, &source, &s.Horizon, &s.Reasoning,
		&s.SizePct, &status, &s.CreatedAt, &s.UpdatedAt, &s.DecidedAt, &s.ExpiredAt,
	)
	if err != nil {
		return nil, err
	}
	s.Action = contracts.SignalAction(action)
	s.Source = contracts.SignalSource(source)
	s.Status = contracts.SignalStatus(status)
	return &s, nil
}

func (r *Repository) list(ctx context.Context, where string, args ...any) ([]*contracts.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals WHERE ` + where + ` ORDER BY id`

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var out []*contracts.Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Get retrieves one signal.
func (r *Repository) Get(ctx context.Context, id int64) (*contracts.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals WHERE id = $1`

	s, err := scanSignal(database.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("signal %d: %w", id, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signal: %w", err)
	}
	return s, nil
}

// FindPendingBySymbol locks and returns the pending row for symbol.
func (r *Repository) FindPendingBySymbol(ctx context.Context, symbol string) (*contracts.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals WHERE symbol = $1 AND status = 'pending' FOR UPDATE`

	s, err := scanSignal(database.Conn(ctx, r.pool).QueryRow(ctx, query, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending signal: %w", err)
	}
	return s, nil
}

// Insert adds a signal. ON CONFLICT DO NOTHING keeps the surrounding
// transaction usable when another writer already holds the pending slot.
func (r *Repository) Insert(ctx context.Context, s *contracts.Signal) error {
	query := `
		INSERT INTO signals (
			action, symbol, thesis_id, confidence, source, horizon, reasoning,
			size_pct, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (symbol) WHERE status = 'pending' DO NOTHING
		RETURNING id
	`

	err := database.Conn(ctx, r.pool).QueryRow(ctx, query,
		string(s.Action), s.Symbol, s.ThesisID, s.Confidence, string(s.Source), s.Horizon, s.Reasoning,
		s.SizePct, string(s.Status), s.CreatedAt, s.UpdatedAt,
	).Scan(&s.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("pending signal for %s already exists: %w", s.Symbol, contracts.ErrStoreConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}
	return nil
}

// UpdatePending rewrites a row only while it is still pending.
func (r *Repository) UpdatePending(ctx context.Context, s *contracts.Signal) error {
	query := `
		UPDATE signals
		SET action = $2, thesis_id = $3, confidence = $4, source = $5, horizon = $6,
		    reasoning = $7, size_pct = $8, updated_at = $9
		WHERE id = $1 AND status = 'pending'
	`

	tag, err := database.Conn(ctx, r.pool).Exec(ctx, query,
		s.ID, string(s.Action), s.ThesisID, s.Confidence, string(s.Source), s.Horizon,
		s.Reasoning, s.SizePct, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update signal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("signal %d is no longer pending: %w", s.ID, contracts.ErrStoreConflict)
	}
	return nil
}

// TransitionStatus moves id from → to if the stored status is still from.
func (r *Repository) TransitionStatus(ctx context.Context, id int64, from, to contracts.SignalStatus, at time.Time) error {
	stamp := "decided_at"
	if to == contracts.SignalExpired {
		stamp = "expired_at"
	}
	query := `
		UPDATE signals SET status = $3, updated_at = $4, ` + stamp + ` = $4
		WHERE id = $1 AND status = $2
	`

	tag, err := database.Conn(ctx, r.pool).Exec(ctx, query, id, string(from), string(to), at)
	if err != nil {
		return fmt.Errorf("failed to transition signal: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("signal %d is no longer %s: %w", id, from, contracts.ErrStoreConflict)
}

func (r *Repository) ListByStatus(ctx context.Context, status contracts.SignalStatus) ([]*contracts.Signal, error) {
	return r.list(ctx, `status = $1`, string(status))
}

func (r *Repository) ListPendingByThesis(ctx context.Context, thesisID int64) ([]*contracts.Signal, error) {
	return r.list(ctx, `status = 'pending' AND thesis_id = $1`, thesisID)
}

func (r *Repository) ListPendingUpdatedBefore(ctx context.Context, cutoff time.Time) ([]*contracts.Signal, error) {
	return r.list(ctx, `status = 'pending' AND updated_at <= $1`, cutoff)
}

// LinkPrinciples replaces the principles linked to a signal. Both
// statements run in the caller's transaction.
func (r *Repository) LinkPrinciples(ctx context.Context, signalID int64, principleIDs []int64) error {
	conn := database.Conn(ctx, r.pool)

	if _, err := conn.Exec(ctx, `DELETE FROM signal_principles WHERE signal_id = $1`, signalID); err != nil {
		return fmt.Errorf("failed to clear principle links: %w", err)
	}
	if len(principleIDs) == 0 {
		return nil
	}

	query := `
		INSERT INTO signal_principles (signal_id, principle_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING
	`
	if _, err := conn.Exec(ctx, query, signalID, principleIDs); err != nil {
		return fmt.Errorf("failed to link principles: %w", err)
	}
	return nil
}

func (r *Repository) PrincipleIDs(ctx context.Context, signalID int64) ([]int64, error) {
	query := `SELECT principle_id FROM signal_principles WHERE signal_id = $1 ORDER BY principle_id`

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, signalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal principles: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan signal principles: %w", err)
	}
	return ids, nil
}
