package chrono

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// Date is a civil date without a time of day or location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the civil date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// MonthKey is the YYYY-MM key documents are grouped by.
func (d Date) MonthKey() string {
	return fmt.Sprintf("%04d-%02d", d.Year, d.Month)
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.In(time.UTC).AddDate(0, 0, n))
}

func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return cmpInt(d.Year, other.Year)
	case d.Month != other.Month:
		return cmpInt(int(d.Month), int(other.Month))
	default:
		return cmpInt(d.Day, other.Day)
	}
}

func (d Date) Before(other Date) bool {
	return d.Compare(other) < 0
}

func (d Date) After(other Date) bool {
	return d.Compare(other) > 0
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// DaysBetween returns every date from `from` to `to` inclusive, stepping towards `to`.
func DaysBetween(from, to Date) []Date {
	step := 1
	if from.After(to) {
		step = -1
	}
	var days []Date
	for d := from; ; d = d.AddDays(step) {
		days = append(days, d)
		if d == to {
			break
		}
	}
	return days
}

// Age returns the calendar age at `now` of someone born on `birth`. When the day of month
// has not been reached yet, a month is borrowed using the length of the month before `now`.
func Age(birth, now Date) (years, months, days int) {
	years = now.Year - birth.Year
	months = int(now.Month) - int(birth.Month)
	days = now.Day - birth.Day

	if days < 0 {
		months--
		// day 0 of now's month is the last day of the previous month
		days += time.Date(now.Year, now.Month, 0, 0, 0, 0, 0, time.UTC).Day()
	}
	if months < 0 {
		years--
		months += 12
	}
	return years, months, days
}
