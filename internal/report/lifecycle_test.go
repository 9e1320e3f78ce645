package report

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencra/opencra/internal/shared"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusDraft, StatusSubmitted, true},
		{StatusSubmitted, StatusLocked, true},
		{StatusDraft, StatusLocked, false},
		{StatusDraft, StatusDraft, false},
		{StatusSubmitted, StatusDraft, false},
		{StatusSubmitted, StatusSubmitted, false},
		{StatusLocked, StatusDraft, false},
		{StatusLocked, StatusSubmitted, false},
		{StatusLocked, StatusLocked, false},
	}
	for _, tc := range cases {
		err := Transition(tc.from, tc.to)
		if tc.ok {
			require.NoError(t, err, "%s to %s", tc.from, tc.to)
		} else {
			require.ErrorIs(t, err, shared.ErrInvalidTransition, "%s to %s", tc.from, tc.to)
		}
	}
}

func TestEnsureEditable(t *testing.T) {
	require.NoError(t, EnsureEditable(StatusDraft))
	require.ErrorIs(t, EnsureEditable(StatusSubmitted), ErrReportSubmitted)
	require.ErrorIs(t, EnsureEditable(StatusLocked), ErrReportLocked)
	require.Error(t, EnsureEditable(Status("ARCHIVED")))
}
