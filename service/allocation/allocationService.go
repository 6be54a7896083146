package allocation

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wmuth/SoundGoodDB/model"
)

// errors used by controllers

type ErrCode string

const (
	ErrConfigInvalid   ErrCode = "CONFIG_INVALID"
	ErrQuotaExceeded   ErrCode = "QUOTA_EXCEEDED"
	ErrOutOfStock      ErrCode = "OUT_OF_STOCK"
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrAlreadyClosed   ErrCode = "ALREADY_CLOSED"
	ErrInvalidRange    ErrCode = "INVALID_RANGE"
	ErrIntegrity       ErrCode = "INTEGRITY"
	ErrStorage         ErrCode = "STORAGE_UNAVAILABLE"
	ErrMultipleMatches ErrCode = "MULTIPLE_MATCHES"
)

type codedError struct{ code ErrCode }

func (e codedError) Error() string { return string(e.code) }
func (e codedError) Code() ErrCode { return e.code }
func makeErr(c ErrCode) error      { return codedError{code: c} }

// MultipleMatchesError is returned by ReturnByPair when the student has more
// than one active rental of the instrument. Candidates lets the caller pick
// one and retry with the exact rental id.
type MultipleMatchesError struct {
	Candidates []model.Rental
}

func (e *MultipleMatchesError) Error() string { return string(ErrMultipleMatches) }
func (e *MultipleMatchesError) Code() ErrCode { return ErrMultipleMatches }

// Code extracts error code
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

// outcome

type Status string

const (
	StatusGranted  Status = "GRANTED"
	StatusRejected Status = "REJECTED"
	StatusClosed   Status = "CLOSED"
)

// Outcome is the tagged result of a rent or return decision. Quota and stock
// rejections are outcomes, not errors; they are expected business results.
type Outcome struct {
	Status Status        `json:"status"`
	Rental *model.Rental `json:"rental,omitempty"`
	Reason ErrCode       `json:"reason,omitempty"`
}

// Ledger is the rental-ledger slice the engine needs. All mutating calls run
// inside the transaction handed out by InTx.
type Ledger interface {
	InTx(ctx context.Context, fn func(tx *sql.Tx) error) error
	LockStudent(ctx context.Context, tx *sql.Tx, studentID int32) error
	CountActiveByStudent(ctx context.Context, tx *sql.Tx, studentID int32) (int64, error)
	CountActiveByInstrument(ctx context.Context, tx *sql.Tx, instrumentID int32) (int64, error)
	Open(ctx context.Context, tx *sql.Tx, studentID, instrumentID int32, start time.Time) (*model.Rental, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, rentalID int64) (*model.Rental, error)
	Close(ctx context.Context, tx *sql.Tx, rentalID int64, end time.Time) error
	ActiveByStudent(ctx context.Context, studentID int32) ([]model.Rental, error)
	ActiveByPair(ctx context.Context, tx *sql.Tx, studentID, instrumentID int32) ([]model.Rental, error)
	OverdueBefore(ctx context.Context, cutoff time.Time) ([]model.Rental, error)
}

type Inventory interface {
	Stock(ctx context.Context, tx *sql.Tx, instrumentID int32) (int64, error)
}

type Rules interface {
	Get(ctx context.Context, tx *sql.Tx, name string) (string, error)
}

type Service interface {
	// Request decides a rent request: quota and availability are re-checked
	// and the ledger row inserted inside one transaction.
	Request(ctx context.Context, studentID, instrumentID int32, start *time.Time) (*Outcome, error)

	// Return closes a rental by id. A zero end time means now.
	Return(ctx context.Context, rentalID int64, end time.Time) (*Outcome, error)

	// ReturnByPair closes the single active rental matching student and
	// instrument, or reports the candidates when there is more than one.
	ReturnByPair(ctx context.Context, studentID, instrumentID int32, end time.Time) (*Outcome, error)

	ActiveForStudent(ctx context.Context, studentID int32) ([]model.Rental, error)

	// Overdue reports active rentals older than rent_max_time months.
	// Reporting only; closing an overdue rental stays a caller decision.
	Overdue(ctx context.Context) ([]model.Rental, error)
}

// ----- Service implementation -----

type service struct {
	ledger Ledger
	inv    Inventory
	rules  Rules
	now    func() time.Time
}

func New(ledger Ledger, inv Inventory, rules Rules) Service {
	return &service{ledger: ledger, inv: inv, rules: rules, now: time.Now}
}

func (s *service) Request(ctx context.Context, studentID, instrumentID int32, start *time.Time) (*Outcome, error) {
	startAt := s.now().UTC()
	if start != nil {
		startAt = start.UTC()
	}

	var out *Outcome
	err := s.ledger.InTx(ctx, func(tx *sql.Tx) error {
		// Serialize competing decisions before reading any counts. The
		// locks are taken on the student and instrument rows themselves,
		// which always exist; locking rentings rows would hold nothing for
		// a first-time student or a fresh instrument.
		if err := s.ledger.LockStudent(ctx, tx, studentID); err != nil {
			return storageErr(err)
		}
		stock, err := s.inv.Stock(ctx, tx, instrumentID)
		if errors.Is(err, sql.ErrNoRows) {
			return makeErr(ErrNotFound)
		}
		if err != nil {
			return storageErr(err)
		}

		maxRentals, err := s.intRule(ctx, tx, model.RuleMaxRentals)
		if err != nil {
			return err
		}
		// Both rules must resolve even though only the count gates renting.
		if _, err := s.intRule(ctx, tx, model.RuleMaxMonths); err != nil {
			return err
		}

		active, err := s.ledger.CountActiveByStudent(ctx, tx, studentID)
		if err != nil {
			return storageErr(err)
		}
		if active >= int64(maxRentals) {
			out = &Outcome{Status: StatusRejected, Reason: ErrQuotaExceeded}
			return nil
		}

		rented, err := s.ledger.CountActiveByInstrument(ctx, tx, instrumentID)
		if err != nil {
			return storageErr(err)
		}
		if stock-rented <= 0 {
			out = &Outcome{Status: StatusRejected, Reason: ErrOutOfStock}
			return nil
		}

		rt, err := s.ledger.Open(ctx, tx, studentID, instrumentID, startAt)
		if err != nil {
			return integrityErr(err)
		}
		out = &Outcome{Status: StatusGranted, Rental: rt}
		return nil
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return out, nil
}

func (s *service) Return(ctx context.Context, rentalID int64, end time.Time) (*Outcome, error) {
	endAt := end.UTC()
	if end.IsZero() {
		endAt = s.now().UTC()
	}

	var out *Outcome
	err := s.ledger.InTx(ctx, func(tx *sql.Tx) error {
		rt, err := s.ledger.GetForUpdate(ctx, tx, rentalID)
		if errors.Is(err, sql.ErrNoRows) {
			return makeErr(ErrNotFound)
		}
		if err != nil {
			return storageErr(err)
		}
		closed, err := s.closeChecked(ctx, tx, rt, endAt)
		if err != nil {
			return err
		}
		out = closed
		return nil
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return out, nil
}

func (s *service) ReturnByPair(ctx context.Context, studentID, instrumentID int32, end time.Time) (*Outcome, error) {
	endAt := end.UTC()
	if end.IsZero() {
		endAt = s.now().UTC()
	}

	var out *Outcome
	err := s.ledger.InTx(ctx, func(tx *sql.Tx) error {
		if err := s.ledger.LockStudent(ctx, tx, studentID); err != nil {
			return storageErr(err)
		}
		// ActiveByPair locks the matched rentings rows, so no two closes
		// race on the same rental.
		matches, err := s.ledger.ActiveByPair(ctx, tx, studentID, instrumentID)
		if err != nil {
			return storageErr(err)
		}
		switch len(matches) {
		case 0:
			return makeErr(ErrNotFound)
		case 1:
			closed, err := s.closeChecked(ctx, tx, &matches[0], endAt)
			if err != nil {
				return err
			}
			out = closed
			return nil
		default:
			return &MultipleMatchesError{Candidates: matches}
		}
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return out, nil
}

// closeChecked validates preconditions on a row already held under lock and
// records the end date.
func (s *service) closeChecked(ctx context.Context, tx *sql.Tx, rt *model.Rental, endAt time.Time) (*Outcome, error) {
	if rt.EndDate != nil {
		return nil, makeErr(ErrAlreadyClosed)
	}
	if endAt.Before(rt.StartDate) {
		return nil, makeErr(ErrInvalidRange)
	}
	if err := s.ledger.Close(ctx, tx, rt.ID, endAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrAlreadyClosed)
		}
		return nil, storageErr(err)
	}
	rt.EndDate = &endAt
	return &Outcome{Status: StatusClosed, Rental: rt}, nil
}

func (s *service) ActiveForStudent(ctx context.Context, studentID int32) ([]model.Rental, error) {
	rows, err := s.ledger.ActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, storageErr(err)
	}
	return rows, nil
}

func (s *service) Overdue(ctx context.Context) ([]model.Rental, error) {
	months, err := s.intRule(ctx, nil, model.RuleMaxMonths)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().UTC().AddDate(0, -months, 0)
	rows, err := s.ledger.OverdueBefore(ctx, cutoff)
	if err != nil {
		return nil, storageErr(err)
	}
	return rows, nil
}

// intRule resolves a business rule that must be a positive integer. Missing
// or malformed values are configuration errors, never silent defaults.
func (s *service) intRule(ctx context.Context, tx *sql.Tx, name string) (int, error) {
	v, err := s.rules.Get(ctx, tx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, makeErr(ErrConfigInvalid)
	}
	if err != nil {
		return 0, storageErr(err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0, makeErr(ErrConfigInvalid)
	}
	return n, nil
}

// storageErr folds timeouts and connection failures into STORAGE_UNAVAILABLE.
// Everything inside the decision runs in one transaction, so callers may
// retry the whole request; no partial state was committed.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return makeErr(ErrStorage)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgerrcode.IsConnectionException(pgErr.Code) {
		return makeErr(ErrStorage)
	}
	return err
}

func integrityErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
		return makeErr(ErrIntegrity)
	}
	return storageErr(err)
}
