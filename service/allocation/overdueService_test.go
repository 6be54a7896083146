package allocation

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wmuth/SoundGoodDB/model"
)

func TestSweep_ReportsWithoutClosing(t *testing.T) {
	closeCalled := false
	lm := &ledgerMock{
		overdueBeforeFn: func(cutoff time.Time) ([]model.Rental, error) {
			return []model.Rental{
				*activeRental(1, at("2022-04-01T00:00:00Z")),
				*activeRental(2, at("2022-05-01T00:00:00Z")),
			}, nil
		},
		closeFn: func(int64, time.Time) error { closeCalled = true; return nil },
	}
	svc := newService(lm, 1, defaultRules(), at("2024-01-01T00:00:00Z"))

	sw := NewSweeper(svc, slog.Default())
	n, err := sw.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.False(t, closeCalled, "sweep must never close rentals")
}

func TestSweep_ConfigError(t *testing.T) {
	svc := newService(&ledgerMock{}, 1, &rulesMock{values: map[string]string{}}, time.Now())

	sw := NewSweeper(svc, slog.Default())
	_, err := sw.Sweep(context.Background())
	require.Error(t, err)
	require.Equal(t, ErrConfigInvalid, Code(err))
}
