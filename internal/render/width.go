package render

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// widthCondition fixes ambiguous width characters to a single cell regardless of the
// locale of the machine rendering, so output does not depend on the environment.
var widthCondition = &runewidth.Condition{EastAsianWidth: false, StrictEmojiNeutral: true}

// DisplayWidth is the number of terminal cells `s` occupies, wide characters count twice.
func DisplayWidth(s string) int {
	return widthCondition.StringWidth(s)
}

// Underline returns a run of `ch` as wide as `title` is displayed.
func Underline(title string, ch byte) string {
	n := DisplayWidth(title)
	if n < 1 {
		n = 1
	}
	return strings.Repeat(string(ch), n)
}

// Heading returns the title followed by its underline.
func Heading(title string, ch byte) []string {
	return []string{title, Underline(title, ch)}
}

// OverlinedHeading returns the title between two lines of `ch`.
func OverlinedHeading(title string, ch byte) []string {
	line := Underline(title, ch)
	return []string{line, title, line}
}
