// model/rental.go
package model

import "time"

// Rental is a ledger row. EndDate is nil while the rental is active and is
// set exactly once when the rental is closed.
type Rental struct {
	ID           int64      `json:"id"`
	StudentID    int32      `json:"student_id"`
	InstrumentID int32      `json:"instrument_id"`
	StartDate    time.Time  `json:"start_date"`
	EndDate      *time.Time `json:"end_date,omitempty"`
}

// Active reports whether the rental has no recorded end date.
func (r *Rental) Active() bool { return r.EndDate == nil }
