// repository/rule/repo.go
package rule

import (
	"context"
	"database/sql"
)

// Repo reads school-wide policy knobs from the business_rules table. Values
// are read fresh inside every decision transaction; nothing here caches.
type Repo interface {
	Get(ctx context.Context, tx *sql.Tx, name string) (string, error)
	List(ctx context.Context) ([]string, error)
	Set(ctx context.Context, name, value string) error
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db} }

func (r *repo) Get(ctx context.Context, tx *sql.Tx, name string) (string, error) {
	const q = `
		SELECT value
		FROM business_rules
		WHERE name = $1`
	var v string
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, q, name).Scan(&v)
	} else {
		err = r.db.QueryRowContext(ctx, q, name).Scan(&v)
	}
	return v, err
}

func (r *repo) List(ctx context.Context) ([]string, error) {
	const q = `
		SELECT name || '=' || value
		FROM business_rules
		ORDER BY name`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repo) Set(ctx context.Context, name, value string) error {
	const q = `
		INSERT INTO business_rules (name, value)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`
	_, err := r.db.ExecContext(ctx, q, name, value)
	return err
}
