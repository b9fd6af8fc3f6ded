package render

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// The html to text conversion is a fixed sequence of text -> text steps:
// tables are pulled out first, then block tags become line breaks, remaining tags
// are dropped, whitespace is collapsed and finally every line is wrapped.

// Table is a table found in an html fragment, cells are plain text.
type Table struct {
	Rows [][]string
}

// Padded returns the rows with blank cells appended up to the widest row.
func (t Table) Padded() [][]string {
	width := 0
	for _, row := range t.Rows {
		width = max(width, len(row))
	}
	out := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		padded := make([]string, width)
		copy(padded, row)
		out[i] = padded
	}
	return out
}

const tableMarker = "⟦table:%d⟧"

var tableMarkerRegex = regexp.MustCompile(`^⟦table:(\d+)⟧$`)

// ExtractTables replaces every top level <table> with a marker paragraph and returns
// the tables in order of appearance.
func ExtractTables(fragment string) (string, []Table, error) {
	if !strings.Contains(strings.ToLower(fragment), "<table") {
		return fragment, nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", nil, err
	}

	var tables []Table
	doc.Find("table").Each(func(_ int, sel *goquery.Selection) {
		if sel.ParentsFiltered("table").Length() > 0 {
			return
		}
		var table Table
		sel.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var row []string
			tr.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
				row = append(row, strings.Join(strings.Fields(cell.Text()), " "))
			})
			if len(row) > 0 {
				table.Rows = append(table.Rows, row)
			}
		})
		sel.ReplaceWithHtml(fmt.Sprintf("<p>"+tableMarker+"</p>", len(tables)))
		tables = append(tables, table)
	})

	body, err := doc.Find("body").Html()
	if err != nil {
		return "", nil, err
	}
	return body, tables, nil
}

var (
	blockTagRegex = regexp.MustCompile(`(?i)</(h\d|p|div|li|tr)\s*>|<br\s*/?>`)
	anyTagRegex   = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRunRegex = regexp.MustCompile(`[ \t\x{3000}]{2,}`)
	blankRunRegex = regexp.MustCompile(`\n{3,}`)
)

// BlockBreaks turns closing block tags and <br> into line breaks.
func BlockBreaks(s string) string {
	return blockTagRegex.ReplaceAllString(s, "\n")
}

// StripTags drops every remaining tag and decodes entities.
func StripTags(s string) string {
	return html.UnescapeString(anyTagRegex.ReplaceAllString(s, " "))
}

// Collapse trims every line, squeezes runs of spaces and keeps at most one blank line
// in a row. Leading and trailing blank lines are removed.
func Collapse(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRunRegex.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankRunRegex.ReplaceAllString(s, "\n\n")
	return strings.Trim(s, "\n")
}

// Wrap greedily breaks `line` into lines of at most `width` characters (not cells).
// Words longer than a line are split. A blank line stays a single blank line.
func Wrap(line string, width int) []string {
	words := strings.Fields(line)
	if len(words) == 0 {
		return []string{""}
	}

	var (
		out []string
		cur []rune
	)
	flush := func() {
		out = append(out, string(cur))
		cur = nil
	}
	for _, word := range words {
		rest := []rune(word)
		for len(rest) > 0 {
			switch {
			case len(cur) == 0 && len(rest) <= width:
				cur = rest
				rest = nil
			case len(cur) == 0:
				cur = rest[:width]
				rest = rest[width:]
				flush()
			case len(cur)+1+len(rest) <= width:
				cur = append(append(cur, ' '), rest...)
				rest = nil
			case len(rest) > width && width-len(cur)-1 > 0:
				// a word that cannot fit any line fills up the current one first
				space := width - len(cur) - 1
				cur = append(append(cur, ' '), rest[:space]...)
				rest = rest[space:]
				flush()
			default:
				flush()
			}
		}
	}
	if len(cur) > 0 {
		flush()
	}
	return out
}

// WrapText wraps every line of `s`.
func WrapText(s string, width int) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		out = append(out, Wrap(line, width)...)
	}
	return out
}

// Segment is either a wrapped line of text or a table.
type Segment struct {
	Line  string
	Table *Table
}

// HTMLToSegments runs the whole conversion over an html fragment.
func HTMLToSegments(fragment string, width int) ([]Segment, error) {
	text, tables, err := ExtractTables(fragment)
	if err != nil {
		return nil, err
	}
	text = Collapse(StripTags(BlockBreaks(text)))
	if text == "" {
		return nil, nil
	}

	var out []Segment
	for _, line := range strings.Split(text, "\n") {
		groups := tableMarkerRegex.FindStringSubmatch(line)
		if groups != nil {
			index, err := strconv.Atoi(groups[1])
			if err == nil && index < len(tables) {
				out = append(out, Segment{Table: &tables[index]})
				continue
			}
		}
		for _, wrapped := range Wrap(line, width) {
			out = append(out, Segment{Line: wrapped})
		}
	}
	return out, nil
}
