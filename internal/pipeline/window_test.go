package pipeline

import (
	"context"
	"testing"

	"carebook/internal/components/chrono"
	"carebook/internal/components/statedb"
	"carebook/internal/record"

	"github.com/stretchr/testify/require"
)

func TestResolveWindow(t *testing.T) {
	ctx := context.Background()
	today := chrono.MustParseDate("2023-11-10")

	testCases := []struct {
		name       string
		flags      WindowFlags
		checkpoint string
		expected   string
		err        error
	}{
		{name: "default days", expected: "2023-11-03..2023-11-10"},
		{name: "checkpoint", checkpoint: "2023-10-31", expected: "2023-10-31..2023-11-10"},
		{name: "all", flags: WindowFlags{All: true}, checkpoint: "2023-10-31", expected: "all"},
		{name: "days", flags: WindowFlags{Days: 2}, expected: "2023-11-08..2023-11-10"},
		{name: "range", flags: WindowFlags{Range: []string{"2023-01-01", "2023-02-01"}}, expected: "2023-01-01..2023-02-01"},
		{name: "conflict", flags: WindowFlags{All: true, Days: 3}, err: ErrConflictingWindow},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			state, err := statedb.Open(":memory:")
			require.NoError(t, err)
			defer state.Close()
			if test.checkpoint != "" {
				require.NoError(t, state.Set(ctx, CheckpointKey, test.checkpoint))
			}

			window, err := ResolveWindow(ctx, test.flags, state, today, DefaultDays)
			if test.err != nil {
				require.ErrorIs(t, err, test.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.expected, window.String())
		})
	}
}

func TestAdvancesCheckpoint(t *testing.T) {
	today := chrono.MustParseDate("2023-11-10")
	checkpoint := chrono.MustParseDate("2023-11-01")
	window := func(start, end string) record.Window {
		return record.NewWindow(chrono.MustParseDate(start), chrono.MustParseDate(end))
	}

	require.True(t, advancesCheckpoint(window("2023-11-10", "2023-11-01"), checkpoint, true, today))
	require.True(t, advancesCheckpoint(record.AllTime, checkpoint, true, today))
	require.True(t, advancesCheckpoint(window("2023-11-10", "2023-11-08"), chrono.Date{}, false, today))
	// leaves 2023-11-02 to 2023-11-07 unfetched
	require.False(t, advancesCheckpoint(window("2023-11-10", "2023-11-08"), checkpoint, true, today))
	// an old range does not reach today
	require.False(t, advancesCheckpoint(window("2023-01-01", "2023-02-01"), chrono.Date{}, false, today))
}
