// repository/instrument/repo.go
package instrument

import (
	"context"
	"database/sql"

	"github.com/wmuth/SoundGoodDB/model"
)

type Repo interface {
	// Stock reads the physical count of an instrument row inside a decision
	// transaction, taking a row lock. The instrument row always exists when
	// the id is valid, so this lock serializes every rent decision on the
	// instrument even when it has no rentings yet. sql.ErrNoRows means the
	// instrument does not exist.
	Stock(ctx context.Context, tx *sql.Tx, instrumentID int32) (int64, error)

	// ListWithAvailability returns catalog rows with availability derived
	// from active rentings. typePattern filters by instrument type prefix
	// (LIKE, e.g. "gui%"); empty means all types.
	ListWithAvailability(ctx context.Context, typePattern string) ([]model.InstrumentAvailability, error)

	Detail(ctx context.Context, id int32) (*model.InstrumentAvailability, error)
	Create(ctx context.Context, typeID int32, brand, mdl string, price float64, count int32) (int32, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db} }

func (r *repo) Stock(ctx context.Context, tx *sql.Tx, instrumentID int32) (int64, error) {
	const q = `
		SELECT count
		FROM instruments
		WHERE instrument_id = $1
		FOR UPDATE`
	var n int64
	err := tx.QueryRowContext(ctx, q, instrumentID).Scan(&n)
	return n, err
}

const availabilitySelect = `
	SELECT i.instrument_id, i.instrument_type_id, t.instrument_type,
		i.brand, i.model, i.price, i.count,
		i.count - COALESCE(COUNT(r.*) FILTER (WHERE r.end_date IS NULL), 0) AS available
	FROM instruments i
	JOIN instrument_types t ON t.instrument_type_id = i.instrument_type_id
	LEFT JOIN rentings r ON r.instrument_id = i.instrument_id`

func (r *repo) ListWithAvailability(ctx context.Context, typePattern string) ([]model.InstrumentAvailability, error) {
	q := availabilitySelect
	args := []any{}
	if typePattern != "" {
		q += `
	WHERE t.instrument_type LIKE $1`
		args = append(args, typePattern)
	}
	q += `
	GROUP BY i.instrument_id, t.instrument_type
	ORDER BY i.instrument_id`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.InstrumentAvailability
	for rows.Next() {
		var ia model.InstrumentAvailability
		if err := rows.Scan(
			&ia.ID, &ia.TypeID, &ia.Type, &ia.Brand, &ia.Model,
			&ia.Price, &ia.Count, &ia.Available,
		); err != nil {
			return nil, err
		}
		out = append(out, ia)
	}
	return out, rows.Err()
}

func (r *repo) Detail(ctx context.Context, id int32) (*model.InstrumentAvailability, error) {
	q := availabilitySelect + `
	WHERE i.instrument_id = $1
	GROUP BY i.instrument_id, t.instrument_type`

	var ia model.InstrumentAvailability
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&ia.ID, &ia.TypeID, &ia.Type, &ia.Brand, &ia.Model,
		&ia.Price, &ia.Count, &ia.Available,
	)
	if err != nil {
		return nil, err
	}
	return &ia, nil
}

func (r *repo) Create(ctx context.Context, typeID int32, brand, mdl string, price float64, count int32) (int32, error) {
	const q = `
		INSERT INTO instruments (instrument_type_id, brand, model, price, count)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING instrument_id`
	var id int32
	if err := r.db.QueryRowContext(ctx, q, typeID, brand, mdl, price, count).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
