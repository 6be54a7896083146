package rental

import "time"

type RequestRentalReq struct {
	StudentID    int32      `json:"student_id" validate:"required,gt=0"`
	InstrumentID int32      `json:"instrument_id" validate:"required,gt=0"`
	StartDate    *time.Time `json:"start_date,omitempty"`
}

type ReturnRentalReq struct {
	EndDate *time.Time `json:"end_date,omitempty"`
}

type ReturnByPairReq struct {
	StudentID    int32      `json:"student_id" validate:"required,gt=0"`
	InstrumentID int32      `json:"instrument_id" validate:"required,gt=0"`
	EndDate      *time.Time `json:"end_date,omitempty"`
}
