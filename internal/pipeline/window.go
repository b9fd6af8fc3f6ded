package pipeline

import (
	"context"
	"errors"
	"fmt"

	"carebook/internal/components/chrono"
	"carebook/internal/record"
)

const (
	CheckpointKey = "checkpoint"
	LoginIDKey    = "login_id"
)

const DefaultDays = 7

var ErrConflictingWindow = errors.New("only one of --all, --days and --range may be given")

// WindowFlags are the ways a window can be asked for on the command line, at most
// one of them may be set.
type WindowFlags struct {
	All   bool
	Days  int
	Range []string
}

// KV is the part of the state db holding the checkpoint.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Checkpoint returns the last fully synchronized date, ok is false before the first
// successful fetch.
func Checkpoint(ctx context.Context, state KV) (chrono.Date, bool, error) {
	value, ok, err := state.Get(ctx, CheckpointKey)
	if err != nil || !ok {
		return chrono.Date{}, false, err
	}
	d, err := chrono.ParseDate(value)
	if err != nil {
		return chrono.Date{}, false, fmt.Errorf("stored checkpoint: %w", err)
	}
	return d, true, nil
}

// ResolveWindow turns the flags into a window. Without flags the window runs from
// today back to the checkpoint, or `defaultDays` back when there is none.
func ResolveWindow(ctx context.Context, flags WindowFlags, state KV, today chrono.Date, defaultDays int) (record.Window, error) {
	given := 0
	if flags.All {
		given++
	}
	if flags.Days > 0 {
		given++
	}
	if len(flags.Range) > 0 {
		given++
	}
	if given > 1 {
		return record.Window{}, ErrConflictingWindow
	}

	switch {
	case flags.All:
		return record.AllTime, nil
	case flags.Days > 0:
		return record.NewWindow(today, today.AddDays(-flags.Days)), nil
	case len(flags.Range) > 0:
		if len(flags.Range) != 2 {
			return record.Window{}, fmt.Errorf("--range takes two dates, got %d", len(flags.Range))
		}
		start, err := chrono.ParseDate(flags.Range[0])
		if err != nil {
			return record.Window{}, err
		}
		end, err := chrono.ParseDate(flags.Range[1])
		if err != nil {
			return record.Window{}, err
		}
		return record.NewWindow(start, end), nil
	}

	checkpoint, ok, err := Checkpoint(ctx, state)
	if err != nil {
		return record.Window{}, err
	}
	if ok {
		return record.NewWindow(today, checkpoint), nil
	}
	if defaultDays <= 0 {
		defaultDays = DefaultDays
	}
	return record.NewWindow(today, today.AddDays(-defaultDays)), nil
}

// advancesCheckpoint reports whether a successful fetch over `window` leaves nothing
// unfetched between the checkpoint and today.
func advancesCheckpoint(window record.Window, checkpoint chrono.Date, hasCheckpoint bool, today chrono.Date) bool {
	lower, upper := window.Bounds()
	if !upper.IsZero() && upper.Before(today) {
		return false
	}
	if lower.IsZero() || !hasCheckpoint {
		return true
	}
	return !lower.After(checkpoint)
}
