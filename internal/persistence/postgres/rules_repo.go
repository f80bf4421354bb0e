package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/stockrun/stockrun/internal/domain/semantic"
	"github.com/stockrun/stockrun/internal/persistence"
	"github.com/stockrun/stockrun/internal/rules"
)

// rulesRepo implements RulesRepo on the rules table.
type rulesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRulesRepo creates a PostgreSQL rules repository.
func NewRulesRepo(db *sqlx.DB, timeout time.Duration) persistence.RulesRepo {
	return &rulesRepo{db: db, timeout: timeout}
}

type ruleRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Purpose     string    `db:"purpose"`
	Status      string    `db:"status"`
	Root        []byte    `db:"root"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// ListRules returns stored rules, optionally filtered by purpose. Rows with
// an unknown purpose or status are skipped; one bad row must not take the
// whole library down.
func (r *rulesRepo) ListRules(ctx context.Context, purpose semantic.Purpose) ([]rules.StoredRule, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, name, description, purpose, status, root, created_at, updated_at
		FROM rules`
	args := []interface{}{}
	if purpose != "" {
		query += ` WHERE purpose = $1`
		args = append(args, string(purpose))
	}
	query += ` ORDER BY created_at ASC`

	var rows []ruleRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}

	out := make([]rules.StoredRule, 0, len(rows))
	for _, row := range rows {
		p, err := semantic.ParsePurpose(row.Purpose)
		if err != nil {
			continue
		}
		st, err := rules.ParseStatus(row.Status)
		if err != nil {
			continue
		}
		out = append(out, rules.StoredRule{
			ID:          row.ID,
			Name:        row.Name,
			Description: row.Description,
			Purpose:     p,
			Status:      st,
			Root:        json.RawMessage(row.Root),
			CreatedAt:   row.CreatedAt.UTC(),
			UpdatedAt:   row.UpdatedAt.UTC(),
		})
	}
	return out, nil
}

// UpsertRule writes one rule by ID.
func (r *rulesRepo) UpsertRule(ctx context.Context, sr rules.StoredRule) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO rules (id, name, description, purpose, status, root, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description,
			purpose = EXCLUDED.purpose, status = EXCLUDED.status,
			root = EXCLUDED.root, updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		sr.ID, sr.Name, sr.Description, string(sr.Purpose), string(sr.Status),
		[]byte(sr.Root), sr.CreatedAt, sr.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate rule %s: %w", sr.ID, err)
		}
		return fmt.Errorf("failed to upsert rule %s: %w", sr.ID, err)
	}
	return nil
}

// DeleteRule removes one rule by ID.
func (r *rulesRepo) DeleteRule(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM rules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete rule %s: %w", id, err)
	}
	return nil
}
