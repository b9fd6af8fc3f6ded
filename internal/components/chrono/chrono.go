package chrono

import (
	"sync"
	"time"
)

// TimeAPI is the interface that anything depending on the system clock should use.
type TimeAPI interface {
	// Now returns the current time in the configured location.
	Now() time.Time
	// Location is the timezone civil dates are interpreted in.
	Location() *time.Location
	// Sleep blocks the caller for `d`.
	Sleep(d time.Duration)
}

// Today returns the civil date of t.Now() in t.Location().
func Today(t TimeAPI) Date {
	return DateOf(t.Now().In(t.Location()))
}

// StandardTime is the standard implementation of TimeAPI using the standard library.
type StandardTime struct {
	location *time.Location
}

// NewStandardTime is the constructor of StandardTime, `tz` is an IANA timezone name.
func NewStandardTime(tz string) (StandardTime, error) {
	location, err := time.LoadLocation(tz)
	if err != nil {
		return StandardTime{}, err
	}
	return StandardTime{location: location}, nil
}

func (s StandardTime) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardTime) Location() *time.Location {
	return s.location
}

func (s StandardTime) Sleep(d time.Duration) {
	time.Sleep(d)
}

// FixedTime is a TimeAPI frozen at a single instant, Sleep only records the requested durations.
type FixedTime struct {
	At time.Time

	mutex sync.Mutex
	slept []time.Duration
}

func NewFixedTime(at time.Time) *FixedTime {
	return &FixedTime{At: at}
}

func (f *FixedTime) Now() time.Time {
	return f.At
}

func (f *FixedTime) Location() *time.Location {
	return f.At.Location()
}

func (f *FixedTime) Sleep(d time.Duration) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.slept = append(f.slept, d)
}

// Slept returns every duration passed to Sleep so far.
func (f *FixedTime) Slept() []time.Duration {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]time.Duration(nil), f.slept...)
}
