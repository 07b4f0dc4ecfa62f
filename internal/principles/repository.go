package principles

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

// Repository persists principles in Postgres
// ⭐ SSOT: principles table is accessed here only
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new principle repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ contracts.PrincipleRepository = (*Repository)(nil)

const principleColumns = `
	id, text, category, domain, action, source, weight,
	validated_count, invalidated_count, active, last_applied, created_at`

func scanPrinciple(row pgx.Row) (*contracts.Principle, error) {
	var p contracts.Principle
	var action, source string
	err := row.Scan(
		&p.ID, &p.Text, &p.Condition.Category, &p.Condition.Domain, &action, &source, &p.Weight,
		&p.ValidatedCount, &p.InvalidatedCount, &p.Active, &p.LastApplied, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Condition.Action = contracts.SignalAction(action)
	p.Condition.Source = contracts.SignalSource(source)
	return &p, nil
}

// Create inserts p and fills its ID.
func (r *Repository) Create(ctx context.Context, p *contracts.Principle) error {
	query := `
		INSERT INTO principles (text, category, domain, action, source, weight, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := database.Conn(ctx, r.pool).QueryRow(ctx, query,
		p.Text, p.Condition.Category, p.Condition.Domain, string(p.Condition.Action),
		string(p.Condition.Source), p.Weight, p.Active, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to insert principle: %w", err)
	}
	return nil
}

// Get retrieves one principle.
func (r *Repository) Get(ctx context.Context, id int64) (*contracts.Principle, error) {
	query := `SELECT ` + principleColumns + ` FROM principles WHERE id = $1`

	p, err := scanPrinciple(database.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("principle %d: %w", id, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get principle: %w", err)
	}
	return p, nil
}

// List returns principles ordered by id.
func (r *Repository) List(ctx context.Context, activeOnly bool) ([]*contracts.Principle, error) {
	query := `SELECT ` + principleColumns + ` FROM principles WHERE ($1 = FALSE OR active) ORDER BY id`

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query principles: %w", err)
	}
	defer rows.Close()

	var out []*contracts.Principle
	for rows.Next() {
		p, err := scanPrinciple(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan principle: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Update writes the mutable columns.
func (r *Repository) Update(ctx context.Context, p *contracts.Principle) error {
	query := `
		UPDATE principles SET
			weight = $2,
			validated_count = $3,
			invalidated_count = $4,
			active = $5,
			last_applied = $6
		WHERE id = $1
	`

	tag, err := database.Conn(ctx, r.pool).Exec(ctx, query,
		p.ID, p.Weight, p.ValidatedCount, p.InvalidatedCount, p.Active, p.LastApplied,
	)
	if err != nil {
		return fmt.Errorf("failed to update principle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("principle %d: %w", p.ID, contracts.ErrNotFound)
	}
	return nil
}

// MarkApplied stamps last_applied for ids.
func (r *Repository) MarkApplied(ctx context.Context, ids []int64, at time.Time) error {
	query := `UPDATE principles SET last_applied = $2 WHERE id = ANY($1)`

	if _, err := database.Conn(ctx, r.pool).Exec(ctx, query, ids, at); err != nil {
		return fmt.Errorf("failed to mark principles applied: %w", err)
	}
	return nil
}

// =============================================================================
// Source stats
// =============================================================================

// StatsRepository persists per-source accuracy
type StatsRepository struct {
	pool *pgxpool.Pool
}

// NewStatsRepository creates a new source stats repository
func NewStatsRepository(pool *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{pool: pool}
}

var _ contracts.SourceStatsRepository = (*StatsRepository)(nil)

func scanStats(row pgx.Row) (*contracts.SourceStats, error) {
	var st contracts.SourceStats
	var source string
	if err := row.Scan(&source, &st.Wins, &st.Losses, &st.Total, &st.AvgReturn, &st.UpdatedAt); err != nil {
		return nil, err
	}
	st.Source = contracts.SignalSource(source)
	return &st, nil
}

// Get returns (nil, nil) for a source without history.
func (r *StatsRepository) Get(ctx context.Context, source contracts.SignalSource) (*contracts.SourceStats, error) {
	query := `SELECT source, wins, losses, total, avg_return, updated_at FROM source_stats WHERE source = $1`

	st, err := scanStats(database.Conn(ctx, r.pool).QueryRow(ctx, query, string(source)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source stats: %w", err)
	}
	return st, nil
}

// List returns every tracked source.
func (r *StatsRepository) List(ctx context.Context) ([]*contracts.SourceStats, error) {
	query := `SELECT source, wins, losses, total, avg_return, updated_at FROM source_stats ORDER BY source`

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query source stats: %w", err)
	}
	defer rows.Close()

	var out []*contracts.SourceStats
	for rows.Next() {
		st, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source stats: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// RecordOutcome folds one return into the running totals in a single
// statement.
func (r *StatsRepository) RecordOutcome(ctx context.Context, source contracts.SignalSource, returnPct float64, at time.Time) (*contracts.SourceStats, error) {
	win, loss := 0, 1
	if returnPct > 0 {
		win, loss = 1, 0
	}

	query := `
		INSERT INTO source_stats (source, wins, losses, total, avg_return, updated_at)
		VALUES ($1, $2, $3, 1, $4, $5)
		ON CONFLICT (source) DO UPDATE SET
			wins = source_stats.wins + EXCLUDED.wins,
			losses = source_stats.losses + EXCLUDED.losses,
			total = source_stats.total + 1,
			avg_return = source_stats.avg_return
				+ (EXCLUDED.avg_return - source_stats.avg_return) / (source_stats.total + 1),
			updated_at = EXCLUDED.updated_at
		RETURNING source, wins, losses, total, avg_return, updated_at
	`

	st, err := scanStats(database.Conn(ctx, r.pool).QueryRow(ctx, query, string(source), win, loss, returnPct, at))
	if err != nil {
		return nil, fmt.Errorf("failed to record source outcome: %w", err)
	}
	return st, nil
}

func scanStrategyStats(row pgx.Row) (*contracts.StrategyStats, error) {
	var st contracts.StrategyStats
	var strategy string
	if err := row.Scan(&strategy, &st.Wins, &st.Losses, &st.Total, &st.AvgReturn, &st.UpdatedAt); err != nil {
		return nil, err
	}
	st.Strategy = contracts.Strategy(strategy)
	return &st, nil
}

// RecordStrategyOutcome is RecordOutcome keyed by thesis strategy.
func (r *StatsRepository) RecordStrategyOutcome(ctx context.Context, strategy contracts.Strategy, returnPct float64, at time.Time) (*contracts.StrategyStats, error) {
	win, loss := 0, 1
	if returnPct > 0 {
		win, loss = 1, 0
	}

	query := `
		INSERT INTO strategy_stats (strategy, wins, losses, total, avg_return, updated_at)
		VALUES ($1, $2, $3, 1, $4, $5)
		ON CONFLICT (strategy) DO UPDATE SET
			wins = strategy_stats.wins + EXCLUDED.wins,
			losses = strategy_stats.losses + EXCLUDED.losses,
			total = strategy_stats.total + 1,
			avg_return = strategy_stats.avg_return
				+ (EXCLUDED.avg_return - strategy_stats.avg_return) / (strategy_stats.total + 1),
			updated_at = EXCLUDED.updated_at
		RETURNING strategy, wins, losses, total, avg_return, updated_at
	`

	st, err := scanStrategyStats(database.Conn(ctx, r.pool).QueryRow(ctx, query, string(strategy), win, loss, returnPct, at))
	if err != nil {
		return nil, fmt.Errorf("failed to record strategy outcome: %w", err)
	}
	return st, nil
}

// ListStrategies returns every tracked strategy.
func (r *StatsRepository) ListStrategies(ctx context.Context) ([]*contracts.StrategyStats, error) {
	query := `SELECT strategy, wins, losses, total, avg_return, updated_at FROM strategy_stats ORDER BY strategy`

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy stats: %w", err)
	}
	defer rows.Close()

	var out []*contracts.StrategyStats
	for rows.Next() {
		st, err := scanStrategyStats(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan strategy stats: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
