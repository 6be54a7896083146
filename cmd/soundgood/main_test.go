package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wmuth/SoundGoodDB/service/allocation"
)

type codeErr struct{ c allocation.ErrCode }

func (e codeErr) Error() string            { return string(e.c) }
func (e codeErr) Code() allocation.ErrCode { return e.c }

func TestDecisionErr_Messages(t *testing.T) {
	cases := map[allocation.ErrCode]string{
		allocation.ErrNotFound:      "no matching renting or instrument found",
		allocation.ErrAlreadyClosed: "renting is already terminated",
		allocation.ErrInvalidRange:  "end date is before start date",
		allocation.ErrConfigInvalid: "business rule missing or not a positive integer",
		allocation.ErrIntegrity:     "unknown student or instrument",
		allocation.ErrStorage:       "storage unavailable, try again",
	}
	for code, want := range cases {
		got := decisionErr(codeErr{c: code})
		require.EqualError(t, got, want, "code %s", code)
	}
}

func TestDecisionErr_PassesUnknownThrough(t *testing.T) {
	err := errors.New("boom")
	require.Same(t, err, decisionErr(err))
}

func TestParsePair(t *testing.T) {
	sid, iid, err := parsePair("3", "7")
	require.NoError(t, err)
	require.Equal(t, int32(3), sid)
	require.Equal(t, int32(7), iid)

	_, _, err = parsePair("x", "7")
	require.Error(t, err)
}
