package allocation

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wmuth/SoundGoodDB/model"
)

// --- mocks ---

type ledgerMock struct {
	lockCalls int
	openCalls int

	lockFn            func(studentID int32) error
	countStudentFn    func(studentID int32) (int64, error)
	countInstrumentFn func(instrumentID int32) (int64, error)
	openFn            func(studentID, instrumentID int32, start time.Time) (*model.Rental, error)
	getFn             func(rentalID int64) (*model.Rental, error)
	closeFn           func(rentalID int64, end time.Time) error
	activeByStudentFn func(studentID int32) ([]model.Rental, error)
	activeByPairFn    func(studentID, instrumentID int32) ([]model.Rental, error)
	overdueBeforeFn   func(cutoff time.Time) ([]model.Rental, error)
}

var _ Ledger = (*ledgerMock)(nil)

func (m *ledgerMock) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

func (m *ledgerMock) LockStudent(ctx context.Context, tx *sql.Tx, studentID int32) error {
	m.lockCalls++
	if m.lockFn == nil {
		return nil
	}
	return m.lockFn(studentID)
}

func (m *ledgerMock) CountActiveByStudent(ctx context.Context, tx *sql.Tx, studentID int32) (int64, error) {
	if m.countStudentFn == nil {
		return 0, nil
	}
	return m.countStudentFn(studentID)
}

func (m *ledgerMock) CountActiveByInstrument(ctx context.Context, tx *sql.Tx, instrumentID int32) (int64, error) {
	if m.countInstrumentFn == nil {
		return 0, nil
	}
	return m.countInstrumentFn(instrumentID)
}

func (m *ledgerMock) Open(ctx context.Context, tx *sql.Tx, studentID, instrumentID int32, start time.Time) (*model.Rental, error) {
	m.openCalls++
	if m.openFn == nil {
		return &model.Rental{ID: 1, StudentID: studentID, InstrumentID: instrumentID, StartDate: start}, nil
	}
	return m.openFn(studentID, instrumentID, start)
}

func (m *ledgerMock) GetForUpdate(ctx context.Context, tx *sql.Tx, rentalID int64) (*model.Rental, error) {
	if m.getFn == nil {
		return nil, sql.ErrNoRows
	}
	return m.getFn(rentalID)
}

func (m *ledgerMock) Close(ctx context.Context, tx *sql.Tx, rentalID int64, end time.Time) error {
	if m.closeFn == nil {
		return nil
	}
	return m.closeFn(rentalID, end)
}

func (m *ledgerMock) ActiveByStudent(ctx context.Context, studentID int32) ([]model.Rental, error) {
	if m.activeByStudentFn == nil {
		return nil, nil
	}
	return m.activeByStudentFn(studentID)
}

func (m *ledgerMock) ActiveByPair(ctx context.Context, tx *sql.Tx, studentID, instrumentID int32) ([]model.Rental, error) {
	if m.activeByPairFn == nil {
		return nil, nil
	}
	return m.activeByPairFn(studentID, instrumentID)
}

func (m *ledgerMock) OverdueBefore(ctx context.Context, cutoff time.Time) ([]model.Rental, error) {
	if m.overdueBeforeFn == nil {
		return nil, nil
	}
	return m.overdueBeforeFn(cutoff)
}

type inventoryMock struct {
	stockFn func(instrumentID int32) (int64, error)
}

func (m *inventoryMock) Stock(ctx context.Context, tx *sql.Tx, instrumentID int32) (int64, error) {
	return m.stockFn(instrumentID)
}

type rulesMock struct {
	values map[string]string
}

func (m *rulesMock) Get(ctx context.Context, tx *sql.Tx, name string) (string, error) {
	v, ok := m.values[name]
	if !ok {
		return "", sql.ErrNoRows
	}
	return v, nil
}

func defaultRules() *rulesMock {
	return &rulesMock{values: map[string]string{
		model.RuleMaxRentals: "2",
		model.RuleMaxMonths:  "12",
	}}
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newService(l *ledgerMock, stock int64, r *rulesMock, now time.Time) *service {
	return &service{
		ledger: l,
		inv:    &inventoryMock{stockFn: func(int32) (int64, error) { return stock, nil }},
		rules:  r,
		now:    func() time.Time { return now },
	}
}

// --- rent decision ---

func TestRequest_Granted(t *testing.T) {
	now := at("2024-02-01T10:00:00Z")
	lm := &ledgerMock{
		countStudentFn:    func(int32) (int64, error) { return 0, nil },
		countInstrumentFn: func(int32) (int64, error) { return 0, nil },
	}
	s := newService(lm, 1, defaultRules(), now)

	out, err := s.Request(context.Background(), 3, 7, nil)
	require.NoError(t, err)
	require.Equal(t, StatusGranted, out.Status)
	require.NotNil(t, out.Rental)
	require.Equal(t, int32(3), out.Rental.StudentID)
	require.Equal(t, int32(7), out.Rental.InstrumentID)
	require.True(t, out.Rental.StartDate.Equal(now))
	require.Equal(t, 1, lm.lockCalls)
	require.Equal(t, 1, lm.openCalls)
}

func TestRequest_QuotaExceeded(t *testing.T) {
	lm := &ledgerMock{
		countStudentFn: func(int32) (int64, error) { return 2, nil },
	}
	s := newService(lm, 5, defaultRules(), at("2024-02-01T10:00:00Z"))

	out, err := s.Request(context.Background(), 3, 7, nil)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, out.Status)
	require.Equal(t, ErrQuotaExceeded, out.Reason)
	require.Zero(t, lm.openCalls, "rejection must not insert a rental")
}

func TestRequest_OutOfStock(t *testing.T) {
	lm := &ledgerMock{
		countStudentFn:    func(int32) (int64, error) { return 0, nil },
		countInstrumentFn: func(int32) (int64, error) { return 1, nil },
	}
	s := newService(lm, 1, defaultRules(), at("2024-02-01T10:00:00Z"))

	out, err := s.Request(context.Background(), 3, 7, nil)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, out.Status)
	require.Equal(t, ErrOutOfStock, out.Reason)
	require.Zero(t, lm.openCalls)
}

// Last unit: first request drains availability, the second is rejected. The
// re-check runs under the row locks inside one transaction, so two callers
// can never both observe the last unit as free.
func TestRequest_LastUnit(t *testing.T) {
	rented := int64(0)
	lm := &ledgerMock{
		countStudentFn:    func(int32) (int64, error) { return 0, nil },
		countInstrumentFn: func(int32) (int64, error) { return rented, nil },
		openFn: func(sid, iid int32, start time.Time) (*model.Rental, error) {
			rented++
			return &model.Rental{ID: rented, StudentID: sid, InstrumentID: iid, StartDate: start}, nil
		},
	}
	s := newService(lm, 1, defaultRules(), at("2024-02-01T10:00:00Z"))

	first, err := s.Request(context.Background(), 3, 7, nil)
	require.NoError(t, err)
	require.Equal(t, StatusGranted, first.Status)

	second, err := s.Request(context.Background(), 4, 7, nil)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, second.Status)
	require.Equal(t, ErrOutOfStock, second.Reason)
}

// The decision takes its locks before reading anything it acts on: the
// student row first, then the instrument row via the locking stock read.
// Counts and the insert run only after both, so two transactions on the
// same instrument serialize even when the ledger has no rows to lock.
// The mocks can only assert ordering within one transaction; the actual
// blocking between two transactions needs a live database.
func TestRequest_LocksBeforeChecks(t *testing.T) {
	var calls []string
	lm := &ledgerMock{
		lockFn: func(int32) error {
			calls = append(calls, "lock student")
			return nil
		},
		countStudentFn: func(int32) (int64, error) {
			calls = append(calls, "count student")
			return 0, nil
		},
		countInstrumentFn: func(int32) (int64, error) {
			calls = append(calls, "count instrument")
			return 0, nil
		},
		openFn: func(sid, iid int32, start time.Time) (*model.Rental, error) {
			calls = append(calls, "open")
			return &model.Rental{ID: 1, StudentID: sid, InstrumentID: iid, StartDate: start}, nil
		},
	}
	s := &service{
		ledger: lm,
		inv: &inventoryMock{stockFn: func(int32) (int64, error) {
			calls = append(calls, "lock stock")
			return 1, nil
		}},
		rules: defaultRules(),
		now:   time.Now,
	}

	out, err := s.Request(context.Background(), 3, 7, nil)
	require.NoError(t, err)
	require.Equal(t, StatusGranted, out.Status)
	require.Equal(t,
		[]string{"lock student", "lock stock", "count student", "count instrument", "open"},
		calls)
}

func TestRequest_UnknownInstrument(t *testing.T) {
	lm := &ledgerMock{}
	s := &service{
		ledger: lm,
		inv:    &inventoryMock{stockFn: func(int32) (int64, error) { return 0, sql.ErrNoRows }},
		rules:  defaultRules(),
		now:    time.Now,
	}

	_, err := s.Request(context.Background(), 3, 999, nil)
	require.Error(t, err)
	require.Equal(t, ErrNotFound, Code(err))
}

func TestRequest_RuleConfigErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"missing count":  {model.RuleMaxMonths: "12"},
		"missing months": {model.RuleMaxRentals: "2"},
		"zero":           {model.RuleMaxRentals: "0", model.RuleMaxMonths: "12"},
		"negative":       {model.RuleMaxRentals: "-1", model.RuleMaxMonths: "12"},
		"garbage":        {model.RuleMaxRentals: "two", model.RuleMaxMonths: "12"},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			lm := &ledgerMock{}
			s := newService(lm, 1, &rulesMock{values: values}, time.Now())

			_, err := s.Request(context.Background(), 3, 7, nil)
			require.Error(t, err)
			require.Equal(t, ErrConfigInvalid, Code(err))
			require.Zero(t, lm.openCalls)
		})
	}
}

func TestRequest_ExplicitStartDate(t *testing.T) {
	start := at("2024-03-15T09:00:00Z")
	lm := &ledgerMock{}
	s := newService(lm, 1, defaultRules(), at("2024-02-01T10:00:00Z"))

	out, err := s.Request(context.Background(), 3, 7, &start)
	require.NoError(t, err)
	require.True(t, out.Rental.StartDate.Equal(start))
}

func TestRequest_StorageUnavailable(t *testing.T) {
	lm := &ledgerMock{
		countStudentFn: func(int32) (int64, error) { return 0, context.DeadlineExceeded },
	}
	s := newService(lm, 1, defaultRules(), time.Now())

	_, err := s.Request(context.Background(), 3, 7, nil)
	require.Error(t, err)
	require.Equal(t, ErrStorage, Code(err))
}

// --- return decision ---

func activeRental(id int64, start time.Time) *model.Rental {
	return &model.Rental{ID: id, StudentID: 3, InstrumentID: 7, StartDate: start}
}

func TestReturn_Closed(t *testing.T) {
	start := at("2024-01-10T00:00:00Z")
	end := at("2024-02-20T00:00:00Z")
	var closedAt time.Time
	lm := &ledgerMock{
		getFn: func(id int64) (*model.Rental, error) { return activeRental(id, start), nil },
		closeFn: func(id int64, e time.Time) error {
			closedAt = e
			return nil
		},
	}
	s := newService(lm, 1, defaultRules(), time.Now())

	out, err := s.Return(context.Background(), 42, end)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, out.Status)
	require.NotNil(t, out.Rental.EndDate)
	require.True(t, out.Rental.EndDate.Equal(end))
	require.True(t, closedAt.Equal(end))
}

func TestReturn_DefaultsToNow(t *testing.T) {
	now := at("2024-02-01T10:00:00Z")
	var closedAt time.Time
	lm := &ledgerMock{
		getFn:   func(id int64) (*model.Rental, error) { return activeRental(id, at("2024-01-10T00:00:00Z")), nil },
		closeFn: func(id int64, e time.Time) error { closedAt = e; return nil },
	}
	s := newService(lm, 1, defaultRules(), now)

	_, err := s.Return(context.Background(), 42, time.Time{})
	require.NoError(t, err)
	require.True(t, closedAt.Equal(now))
}

func TestReturn_NotFound(t *testing.T) {
	s := newService(&ledgerMock{}, 1, defaultRules(), time.Now())

	_, err := s.Return(context.Background(), 42, time.Now())
	require.Error(t, err)
	require.Equal(t, ErrNotFound, Code(err))
}

func TestReturn_AlreadyClosed(t *testing.T) {
	end := at("2024-01-20T00:00:00Z")
	closeCalled := false
	lm := &ledgerMock{
		getFn: func(id int64) (*model.Rental, error) {
			r := activeRental(id, at("2024-01-10T00:00:00Z"))
			r.EndDate = &end
			return r, nil
		},
		closeFn: func(int64, time.Time) error { closeCalled = true; return nil },
	}
	s := newService(lm, 1, defaultRules(), time.Now())

	_, err := s.Return(context.Background(), 42, time.Now())
	require.Error(t, err)
	require.Equal(t, ErrAlreadyClosed, Code(err))
	require.False(t, closeCalled, "closing twice must never touch the ledger")
}

func TestReturn_InvalidRange(t *testing.T) {
	closeCalled := false
	lm := &ledgerMock{
		getFn:   func(id int64) (*model.Rental, error) { return activeRental(id, at("2024-02-10T00:00:00Z")), nil },
		closeFn: func(int64, time.Time) error { closeCalled = true; return nil },
	}
	s := newService(lm, 1, defaultRules(), time.Now())

	_, err := s.Return(context.Background(), 42, at("2024-02-09T00:00:00Z"))
	require.Error(t, err)
	require.Equal(t, ErrInvalidRange, Code(err))
	require.False(t, closeCalled)
}

// --- return by student/instrument pair ---

func TestReturnByPair_Single(t *testing.T) {
	lm := &ledgerMock{
		activeByPairFn: func(sid, iid int32) ([]model.Rental, error) {
			return []model.Rental{*activeRental(11, at("2024-01-10T00:00:00Z"))}, nil
		},
	}
	s := newService(lm, 1, defaultRules(), at("2024-02-01T10:00:00Z"))

	out, err := s.ReturnByPair(context.Background(), 3, 7, time.Time{})
	require.NoError(t, err)
	require.Equal(t, StatusClosed, out.Status)
	require.Equal(t, int64(11), out.Rental.ID)
}

func TestReturnByPair_NoMatch(t *testing.T) {
	s := newService(&ledgerMock{}, 1, defaultRules(), time.Now())

	_, err := s.ReturnByPair(context.Background(), 3, 7, time.Time{})
	require.Error(t, err)
	require.Equal(t, ErrNotFound, Code(err))
}

func TestReturnByPair_Multiple(t *testing.T) {
	lm := &ledgerMock{
		activeByPairFn: func(sid, iid int32) ([]model.Rental, error) {
			return []model.Rental{
				*activeRental(11, at("2024-01-10T00:00:00Z")),
				*activeRental(12, at("2024-01-12T00:00:00Z")),
			}, nil
		},
	}
	s := newService(lm, 1, defaultRules(), time.Now())

	_, err := s.ReturnByPair(context.Background(), 3, 7, time.Time{})
	require.Error(t, err)
	require.Equal(t, ErrMultipleMatches, Code(err))

	var multi *MultipleMatchesError
	require.ErrorAs(t, err, &multi)
	require.Len(t, multi.Candidates, 2)
}

// --- overdue ---

func TestOverdue_CutoffByRule(t *testing.T) {
	opened := at("2022-04-01T00:00:00Z")
	fixture := []model.Rental{*activeRental(1, opened)}
	lm := &ledgerMock{
		overdueBeforeFn: func(cutoff time.Time) ([]model.Rental, error) {
			var out []model.Rental
			for _, r := range fixture {
				if r.StartDate.Before(cutoff) {
					out = append(out, r)
				}
			}
			return out, nil
		},
	}

	// 13 months after opening: overdue with rent_max_time=12.
	s := newService(lm, 1, defaultRules(), at("2023-05-01T00:00:00Z"))
	rows, err := s.Overdue(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0].ID)

	// Two months after opening: not overdue.
	s = newService(lm, 1, defaultRules(), at("2022-06-01T00:00:00Z"))
	rows, err = s.Overdue(context.Background())
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestOverdue_RuleMissing(t *testing.T) {
	s := newService(&ledgerMock{}, 1, &rulesMock{values: map[string]string{}}, time.Now())

	_, err := s.Overdue(context.Background())
	require.Error(t, err)
	require.Equal(t, ErrConfigInvalid, Code(err))
}

func TestActiveForStudent_Passthrough(t *testing.T) {
	lm := &ledgerMock{
		activeByStudentFn: func(sid int32) ([]model.Rental, error) {
			return []model.Rental{*activeRental(5, at("2024-01-10T00:00:00Z"))}, nil
		},
	}
	s := newService(lm, 1, defaultRules(), time.Now())

	rows, err := s.ActiveForStudent(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
