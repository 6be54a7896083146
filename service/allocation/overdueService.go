package allocation

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically reports overdue rentals. It never closes them; an
// instrument the student still holds must be returned by an explicit call.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
	Run(ctx context.Context, every time.Duration)
}

type sweeper struct {
	svc Service
	log *slog.Logger
}

func NewSweeper(svc Service, log *slog.Logger) Sweeper {
	return &sweeper{svc: svc, log: log}
}

func (s *sweeper) Sweep(ctx context.Context) (int, error) {
	rows, err := s.svc.Overdue(ctx)
	if err != nil {
		return 0, err
	}
	for _, r := range rows {
		s.log.Warn("rental overdue",
			"rent_id", r.ID,
			"student_id", r.StudentID,
			"instrument_id", r.InstrumentID,
			"started", r.StartDate,
		)
	}
	return len(rows), nil
}

func (s *sweeper) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	s.log.Info("overdue sweeper started", "interval", every)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Sweep(ctx); err != nil {
				s.log.Error("overdue sweep", "err", err)
			} else if n > 0 {
				s.log.Info("overdue sweep done", "overdue", n)
			}
		}
	}
}
