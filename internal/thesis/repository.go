package thesis

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

// Repository persists theses in Postgres
// ⭐ SSOT: theses / thesis_versions tables are accessed here only
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new thesis repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ contracts.ThesisRepository = (*Repository)(nil)

const thesisColumns = `
	id, title, body, strategy, status, symbols, validation_criteria,
	failure_criteria, horizon, conviction, research_sessions, domain,
	source_module, created_at, updated_at`

func scanThesis(row pgx.Row) (*contracts.Thesis, error) {
	var t contracts.Thesis
	var strategy, status string
	err := row.Scan(
		&t.ID, &t.Title, &t.Body, &strategy, &status, &t.Symbols, &t.ValidationCriteria,
		&t.FailureCriteria, &t.Horizon, &t.Conviction, &t.ResearchSessions, &t.Domain,
		&t.SourceModule, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Strategy = contracts.Strategy(strategy)
	t.Status = contracts.ThesisStatus(status)
	return &t, nil
}

// Create inserts t and fills its ID.
func (r *Repository) Create(ctx context.Context, t *contracts.Thesis) error {
	query := `
		INSERT INTO theses (
			title, body, strategy, status, symbols, validation_criteria,
			failure_criteria, horizon, conviction, research_sessions, domain,
			source_module, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`

	err := database.Conn(ctx, r.pool).QueryRow(ctx, query,
		t.Title, t.Body, string(t.Strategy), string(t.Status), t.Symbols, t.ValidationCriteria,
		t.FailureCriteria, t.Horizon, t.Conviction, t.ResearchSessions, t.Domain,
		t.SourceModule, t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to insert thesis: %w", err)
	}
	return nil
}

// Get retrieves one thesis.
func (r *Repository) Get(ctx context.Context, id int64) (*contracts.Thesis, error) {
	query := `SELECT ` + thesisColumns + ` FROM theses WHERE id = $1`

	t, err := scanThesis(database.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("thesis %d: %w", id, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thesis: %w", err)
	}
	return t, nil
}

// List returns theses ordered by id, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status *contracts.ThesisStatus) ([]*contracts.Thesis, error) {
	query := `SELECT ` + thesisColumns + ` FROM theses WHERE ($1::text IS NULL OR status = $1) ORDER BY id`

	var filter *string
	if status != nil {
		s := string(*status)
		filter = &s
	}

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list theses: %w", err)
	}
	defer rows.Close()

	var out []*contracts.Thesis
	for rows.Next() {
		t, err := scanThesis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thesis: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update writes every field except status and research sessions.
func (r *Repository) Update(ctx context.Context, t *contracts.Thesis) error {
	query := `
		UPDATE theses SET
			title = $2, body = $3, symbols = $4, validation_criteria = $5,
			failure_criteria = $6, horizon = $7, conviction = $8,
			domain = $9, updated_at = $10
		WHERE id = $1
	`

	tag, err := database.Conn(ctx, r.pool).Exec(ctx, query,
		t.ID, t.Title, t.Body, t.Symbols, t.ValidationCriteria,
		t.FailureCriteria, t.Horizon, t.Conviction,
		t.Domain, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update thesis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("thesis %d: %w", t.ID, contracts.ErrNotFound)
	}
	return nil
}

// IncrementResearchSessions bumps the counter in the row itself, so
// concurrent sessions never overwrite each other.
func (r *Repository) IncrementResearchSessions(ctx context.Context, id int64, at time.Time) (*contracts.Thesis, error) {
	query := `
		UPDATE theses SET research_sessions = research_sessions + 1, updated_at = $2
		WHERE id = $1
		RETURNING ` + thesisColumns

	t, err := scanThesis(database.Conn(ctx, r.pool).QueryRow(ctx, query, id, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("thesis %d: %w", id, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record research session: %w", err)
	}
	return t, nil
}

// UpdateStatus is a compare-and-set on status.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, from, to contracts.ThesisStatus, at time.Time) error {
	query := `UPDATE theses SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`

	tag, err := database.Conn(ctx, r.pool).Exec(ctx, query, id, string(from), string(to), at)
	if err != nil {
		return fmt.Errorf("failed to update thesis status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("thesis %d no longer %s: %w", id, from, contracts.ErrStoreConflict)
	}
	return nil
}

// AppendVersion writes one history row.
func (r *Repository) AppendVersion(ctx context.Context, v *contracts.ThesisVersion) error {
	query := `
		INSERT INTO thesis_versions (thesis_id, old_status, new_status, reason, evidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var old *string
	if v.OldStatus != nil {
		s := string(*v.OldStatus)
		old = &s
	}

	err := database.Conn(ctx, r.pool).QueryRow(ctx, query,
		v.ThesisID, old, string(v.NewStatus), v.Reason, v.Evidence, v.CreatedAt,
	).Scan(&v.ID)
	if err != nil {
		return fmt.Errorf("failed to insert thesis version: %w", err)
	}
	return nil
}

// Versions returns the history of one thesis, oldest first.
func (r *Repository) Versions(ctx context.Context, thesisID int64) ([]*contracts.ThesisVersion, error) {
	query := `
		SELECT id, thesis_id, old_status, new_status, reason, evidence, created_at
		FROM thesis_versions
		WHERE thesis_id = $1
		ORDER BY id
	`

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, thesisID)
	if err != nil {
		return nil, fmt.Errorf("failed to query thesis versions: %w", err)
	}
	defer rows.Close()

	var out []*contracts.ThesisVersion
	for rows.Next() {
		var v contracts.ThesisVersion
		var old *string
		var next string
		if err := rows.Scan(&v.ID, &v.ThesisID, &old, &next, &v.Reason, &v.Evidence, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan thesis version: %w", err)
		}
		if old != nil {
			st := contracts.ThesisStatus(*old)
			v.OldStatus = &st
		}
		v.NewStatus = contracts.ThesisStatus(next)
		out = append(out, &v)
	}
	return out, rows.Err()
}
