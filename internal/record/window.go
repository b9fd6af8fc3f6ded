package record

import (
	"fmt"

	"carebook/internal/components/chrono"
)

// Class is where a date falls relative to a Window.
type Class int

const (
	Within Class = iota
	// Before is older than the earlier bound.
	Before
	// After is newer than the later bound.
	After
)

func (c Class) String() string {
	switch c {
	case Before:
		return "before"
	case After:
		return "after"
	default:
		return "within"
	}
}

// Window is an optional pair of dates, a zero Date means the side is unbounded.
// Start and End are kept as given (Start is usually the newer "today" side), the
// comparisons sort them first.
type Window struct {
	Start chrono.Date
	End   chrono.Date
}

// AllTime is the window without bounds.
var AllTime = Window{}

func NewWindow(start, end chrono.Date) Window {
	return Window{Start: start, End: end}
}

func (w Window) Unbounded() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Bounds returns the earlier and later bound, either may be zero when the window is
// one sided. A lone Start is a lower bound and a lone End an upper bound.
func (w Window) Bounds() (lower, upper chrono.Date) {
	switch {
	case w.Start.IsZero():
		return chrono.Date{}, w.End
	case w.End.IsZero():
		return w.Start, chrono.Date{}
	case w.Start.After(w.End):
		return w.End, w.Start
	default:
		return w.Start, w.End
	}
}

// ClassifyDate places `d` relative to the window.
func (w Window) ClassifyDate(d chrono.Date) Class {
	lower, upper := w.Bounds()
	if !lower.IsZero() && d.Before(lower) {
		return Before
	}
	if !upper.IsZero() && d.After(upper) {
		return After
	}
	return Within
}

func (w Window) Contains(d chrono.Date) bool {
	return w.ClassifyDate(d) == Within
}

func (w Window) String() string {
	if w.Unbounded() {
		return "all"
	}
	lower, upper := w.Bounds()
	format := func(d chrono.Date) string {
		if d.IsZero() {
			return ""
		}
		return d.String()
	}
	return fmt.Sprintf("%s..%s", format(lower), format(upper))
}

// Classify is the date range oracle, it fails when the record carries no usable date.
func Classify(r Record, w Window) (Class, error) {
	if w.Unbounded() {
		return Within, nil
	}
	d, err := r.DisplayDate()
	if err != nil {
		return Within, err
	}
	return w.ClassifyDate(d), nil
}
