package record

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var pathReplacer = strings.NewReplacer(
	"/", "／",
	"\\", "＼",
	"\x00", "",
)

// SanitizeName makes `s` usable as a single path element, the result is NFC normalized
// so names typed on different platforms compare equal.
func SanitizeName(s string) string {
	return norm.NFC.String(pathReplacer.Replace(strings.TrimSpace(s)))
}

// Identity is the stable, human sortable name a record is cached under.
//
// Bills are keyed by their start_date since they carry no display date of their own,
// handouts by their publish date, title and id.
func (r Record) Identity() (string, error) {
	switch {
	case r.Category == Handout:
		d, err := r.DisplayDate()
		if err != nil {
			return "", err
		}
		return SanitizeName(fmt.Sprintf("%s [%s]_%s", d, r.Title(), r.ID)), nil
	case r.IsBill():
		start, ok := r.String("start_date")
		if !ok {
			return "", fmt.Errorf("%w: bill %s has no start_date", ErrUnrecognizedDate, r.ID)
		}
		return SanitizeName(fmt.Sprintf("%s_%s", start, r.ID)), nil
	}

	display, ok := r.String("display_date")
	if !ok {
		d, err := r.DisplayDate()
		if err != nil {
			return "", err
		}
		display = d.String()
	}
	return SanitizeName(fmt.Sprintf("%s_%s", display, r.ID)), nil
}
