// repository/rental/repo.go
package rental

import (
	"context"
	"database/sql"
	"time"

	"github.com/wmuth/SoundGoodDB/model"
)

// Repo is the rental ledger: the system of record for who has which
// instrument, since when, until when. Availability is never stored here; it
// is derived from instruments.count minus active rows per instrument.
type Repo interface {
	// InTx runs fn inside one transaction, rolling back on error.
	InTx(ctx context.Context, fn func(tx *sql.Tx) error) error

	// LockStudent takes a row lock on the student, serializing competing
	// quota checks. Locking rentings rows instead would be vacuous for a
	// student with no rentals yet; the parent row always exists. The
	// instrument side is serialized by the locking stock read.
	LockStudent(ctx context.Context, tx *sql.Tx, studentID int32) error

	CountActiveByStudent(ctx context.Context, tx *sql.Tx, studentID int32) (int64, error)
	CountActiveByInstrument(ctx context.Context, tx *sql.Tx, instrumentID int32) (int64, error)

	Open(ctx context.Context, tx *sql.Tx, studentID, instrumentID int32, start time.Time) (*model.Rental, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, rentalID int64) (*model.Rental, error)
	Close(ctx context.Context, tx *sql.Tx, rentalID int64, end time.Time) error

	ActiveByStudent(ctx context.Context, studentID int32) ([]model.Rental, error)
	ActiveByPair(ctx context.Context, tx *sql.Tx, studentID, instrumentID int32) ([]model.Rental, error)

	// OverdueBefore lists active rentals whose start date is strictly before
	// the cutoff instant.
	OverdueBefore(ctx context.Context, cutoff time.Time) ([]model.Rental, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db} }

func (r *repo) InTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *repo) LockStudent(ctx context.Context, tx *sql.Tx, studentID int32) error {
	const q = `
		SELECT student_id
		FROM students
		WHERE student_id = $1
		FOR UPDATE`
	_, err := tx.ExecContext(ctx, q, studentID)
	return err
}

func (r *repo) CountActiveByStudent(ctx context.Context, tx *sql.Tx, studentID int32) (int64, error) {
	const q = `
		SELECT COUNT(*)
		FROM rentings
		WHERE student_id = $1 AND end_date IS NULL`
	var n int64
	err := tx.QueryRowContext(ctx, q, studentID).Scan(&n)
	return n, err
}

func (r *repo) CountActiveByInstrument(ctx context.Context, tx *sql.Tx, instrumentID int32) (int64, error) {
	const q = `
		SELECT COUNT(*)
		FROM rentings
		WHERE instrument_id = $1 AND end_date IS NULL`
	var n int64
	err := tx.QueryRowContext(ctx, q, instrumentID).Scan(&n)
	return n, err
}

func (r *repo) Open(ctx context.Context, tx *sql.Tx, studentID, instrumentID int32, start time.Time) (*model.Rental, error) {
	const q = `
		INSERT INTO rentings (student_id, instrument_id, start_date)
		VALUES ($1, $2, $3)
		RETURNING rent_id`
	rt := &model.Rental{StudentID: studentID, InstrumentID: instrumentID, StartDate: start}
	if err := tx.QueryRowContext(ctx, q, studentID, instrumentID, start).Scan(&rt.ID); err != nil {
		return nil, err
	}
	return rt, nil
}

func (r *repo) GetForUpdate(ctx context.Context, tx *sql.Tx, rentalID int64) (*model.Rental, error) {
	const q = `
		SELECT rent_id, student_id, instrument_id, start_date, end_date
		FROM rentings
		WHERE rent_id = $1
		FOR UPDATE`
	rt := &model.Rental{}
	err := tx.QueryRowContext(ctx, q, rentalID).Scan(
		&rt.ID, &rt.StudentID, &rt.InstrumentID, &rt.StartDate, &rt.EndDate,
	)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func (r *repo) Close(ctx context.Context, tx *sql.Tx, rentalID int64, end time.Time) error {
	// Engine checks the row under lock first; the guard here is a second
	// line against a close racing an already-closed row.
	const q = `
		UPDATE rentings
		SET end_date = $2
		WHERE rent_id = $1 AND end_date IS NULL`
	res, err := tx.ExecContext(ctx, q, rentalID, end)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *repo) ActiveByStudent(ctx context.Context, studentID int32) ([]model.Rental, error) {
	const q = `
		SELECT rent_id, student_id, instrument_id, start_date, end_date
		FROM rentings
		WHERE student_id = $1 AND end_date IS NULL
		ORDER BY start_date ASC, rent_id ASC`
	return r.queryRentals(ctx, q, studentID)
}

func (r *repo) ActiveByPair(ctx context.Context, tx *sql.Tx, studentID, instrumentID int32) ([]model.Rental, error) {
	const q = `
		SELECT rent_id, student_id, instrument_id, start_date, end_date
		FROM rentings
		WHERE student_id = $1 AND instrument_id = $2 AND end_date IS NULL
		ORDER BY start_date ASC, rent_id ASC
		FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, studentID, instrumentID)
	if err != nil {
		return nil, err
	}
	return scanRentals(rows)
}

func (r *repo) OverdueBefore(ctx context.Context, cutoff time.Time) ([]model.Rental, error) {
	const q = `
		SELECT rent_id, student_id, instrument_id, start_date, end_date
		FROM rentings
		WHERE end_date IS NULL AND start_date < $1
		ORDER BY start_date ASC, rent_id ASC`
	return r.queryRentals(ctx, q, cutoff)
}

func (r *repo) queryRentals(ctx context.Context, q string, args ...any) ([]model.Rental, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanRentals(rows)
}

func scanRentals(rows *sql.Rows) ([]model.Rental, error) {
	defer rows.Close()
	var out []model.Rental
	for rows.Next() {
		var rt model.Rental
		if err := rows.Scan(&rt.ID, &rt.StudentID, &rt.InstrumentID, &rt.StartDate, &rt.EndDate); err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}
