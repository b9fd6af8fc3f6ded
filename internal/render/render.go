package render

import (
	"fmt"
	"strings"
	"unicode"

	"carebook/internal/components/assert"
	"carebook/internal/components/telemetry"
	"carebook/internal/record"
)

const (
	report_renderer_category = "renderer.category"
	report_renderer_kind     = "renderer.kind"
)

const DefaultWrapWidth = 30

// Rule renders one record, returning no lines means the record is intentionally
// left out of the notebook.
type Rule func(r Renderer, rec record.Record) ([]string, error)

type ruleKey struct {
	category record.Category
	kind     record.Kind
}

func nothing(Renderer, record.Record) ([]string, error) {
	return nil, nil
}

// rules is known to be incomplete, the portal adds kinds over time.
var rules = map[ruleKey]Rule{
	{record.Timeline, "1"}:              simpleContent, // notice
	{record.Timeline, "3"}:              nothing,
	{record.Timeline, "4"}:              dailyLog,
	{record.Timeline, "6"}:              nothing, // survey
	{record.Timeline, "7"}:              nothing,
	{record.Timeline, "8"}:              simpleContent, // late or absent
	{record.Timeline, "9"}:              simpleContent,
	{record.Timeline, record.KindBills}: nothing,

	{record.Comment, "2"}: parentLog,

	{record.ContactResponse, "3"}: simpleContent,
	{record.ContactResponse, "6"}: simpleContent,
	{record.ContactResponse, "7"}: simpleContent,
	{record.ContactResponse, "8"}: simpleContent,
	{record.ContactResponse, "9"}: simpleContent,

	{record.Handout, record.KindHandout}: simpleContent,
}

type Options struct {
	// WrapWidth is the column budget text is wrapped at, in characters.
	WrapWidth int
}

// Renderer turns records into reStructuredText lines.
type Renderer struct {
	wrapWidth int
	tel       telemetry.API
}

func New(opts Options, tel telemetry.API) Renderer {
	assert.NotNil(tel)
	if opts.WrapWidth == 0 {
		opts.WrapWidth = DefaultWrapWidth
	}
	assert.Positive(opts.WrapWidth)
	return Renderer{
		wrapWidth: opts.WrapWidth,
		tel:       telemetry.NewScopedAPI("render", tel),
	}
}

func (r Renderer) WrapWidth() int {
	return r.wrapWidth
}

func knownCategory(c record.Category) bool {
	for key := range rules {
		if key.category == c {
			return true
		}
	}
	return false
}

// Render returns the lines of `rec`. emitted is false when there is nothing to show,
// either by rule or because no rule exists for the record, which is reported as a warning.
func (r Renderer) Render(rec record.Record) (lines []string, emitted bool, err error) {
	rule, ok := rules[ruleKey{rec.Category, rec.Kind}]
	if !ok {
		if !knownCategory(rec.Category) {
			r.tel.ReportWarning(report_renderer_category, rec.Category, rec.ID)
		} else {
			r.tel.ReportWarning(report_renderer_kind, rec.Category, rec.Kind, rec.ID)
		}
		return nil, false, nil
	}
	lines, err = rule(r, rec)
	if err != nil {
		return nil, false, fmt.Errorf("render %s %s (kind %s): %w", rec.Category, rec.ID, rec.Kind, err)
	}
	return lines, len(lines) > 0, nil
}

var inlineEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"`", "\\`",
	"|", `\|`,
	"_", `\_`,
)

// Escape keeps text from being read as inline markup.
func Escape(s string) string {
	return inlineEscaper.Replace(s)
}

// EscapeTitle escapes only the markup characters that could open or close inline
// markup, so a title such as "ab_cd" stays as wide as it is displayed. A character
// between two letters or digits never does.
func EscapeTitle(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if strings.ContainsRune("\\*`|_", r) && !(r != '\\' && inWord(runes, i)) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func inWord(runes []rune, i int) bool {
	if i == 0 || i == len(runes)-1 {
		return false
	}
	return isWordRune(runes[i-1]) && isWordRune(runes[i+1])
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

const untitled = "（無題）"

// writer accumulates reStructuredText.
type writer struct {
	lines []string
}

func (w *writer) blank() {
	if len(w.lines) > 0 && w.lines[len(w.lines)-1] != "" {
		w.lines = append(w.lines, "")
	}
}

func (w *writer) heading(title string) {
	// the underline covers the emitted text, backslashes included
	title = EscapeTitle(strings.Join(strings.Fields(title), " "))
	if title == "" {
		title = untitled
	}
	w.blank()
	w.lines = append(w.lines, Heading(title, '-')...)
	w.lines = append(w.lines, "")
}

func (w *writer) field(name, value string) {
	w.lines = append(w.lines, fmt.Sprintf(":%s: %s", name, Escape(value)))
}

// textLines writes already wrapped lines as a line block, so the breaks survive.
func (w *writer) textLines(lines []string) {
	for _, line := range lines {
		if line == "" {
			w.blank()
			continue
		}
		w.lines = append(w.lines, "| "+Escape(line))
	}
}

func (w *writer) table(t Table) {
	rows := t.Padded()
	if len(rows) == 0 {
		return
	}
	w.blank()
	w.lines = append(w.lines, ".. list-table::", "")
	for _, row := range rows {
		for i, cell := range row {
			prefix := "     -"
			if i == 0 {
				prefix = "   * -"
			}
			if cell == "" {
				w.lines = append(w.lines, prefix)
				continue
			}
			w.lines = append(w.lines, prefix+" "+Escape(cell))
		}
	}
	w.lines = append(w.lines, "")
}

func (w *writer) segments(segments []Segment) {
	var pending []string
	flush := func() {
		w.textLines(pending)
		pending = nil
	}
	for _, seg := range segments {
		if seg.Table != nil {
			flush()
			w.table(*seg.Table)
			continue
		}
		pending = append(pending, seg.Line)
	}
	flush()
}

// section writes a bold label followed by wrapped plain text.
func (r Renderer) section(w *writer, label string, text string) {
	w.blank()
	w.lines = append(w.lines, fmt.Sprintf("**%s**", label), "")
	w.textLines(WrapText(Collapse(text), r.wrapWidth))
}

func (w *writer) finish() []string {
	for len(w.lines) > 0 && w.lines[len(w.lines)-1] == "" {
		w.lines = w.lines[:len(w.lines)-1]
	}
	return w.lines
}

var contentFields = []string{"content", "body", "description"}

func firstText(rec record.Record, keys []string) (string, bool) {
	for _, key := range keys {
		if s, ok := rec.String(key); ok {
			return s, true
		}
	}
	return "", false
}

func timestampField(w *writer, rec record.Record) error {
	ts, err := rec.Timestamp()
	if err != nil {
		return err
	}
	w.field("日時", ts.Format("2006-01-02 15:04"))
	return nil
}

// SimpleContent renders the title, timestamp and html body of a record.
func (r Renderer) SimpleContent(rec record.Record) ([]string, error) {
	return simpleContent(r, rec)
}

func simpleContent(r Renderer, rec record.Record) ([]string, error) {
	w := &writer{}
	w.heading(rec.Title())
	err := timestampField(w, rec)
	if err != nil {
		return nil, err
	}

	body, _ := firstText(rec, contentFields)
	segments, err := HTMLToSegments(body, r.wrapWidth)
	if err != nil {
		return nil, err
	}
	if len(segments) > 0 {
		w.blank()
		w.segments(segments)
	}
	return w.finish(), nil
}

func joinParts(label string, parts []string) string {
	return strings.Join(append([]string{label}, parts...), " ")
}

func dailyLog(r Renderer, rec record.Record) ([]string, error) {
	content, ok := rec.String("content")
	if !ok {
		return nil, fmt.Errorf("%w: no content field", ErrMalformedContent)
	}
	log, err := ParseDailyLog(content)
	if err != nil {
		return nil, err
	}

	w := &writer{}
	w.heading("連絡帳（園）")
	err = timestampField(w, rec)
	if err != nil {
		return nil, err
	}

	if log.Memo != nil {
		segments, err := HTMLToSegments(strings.ReplaceAll(log.Memo.String(), "\n", "<br>"), r.wrapWidth)
		if err != nil {
			return nil, err
		}
		if len(segments) > 0 {
			w.blank()
			w.segments(segments)
		}
	}
	if log.Meal != nil {
		r.section(w, "食事", log.Meal.String())
	}

	var mood []string
	if log.MoodMorning != nil {
		mood = append(mood, fmt.Sprintf("朝(%s)", log.MoodMorning))
	}
	if log.MoodAfternoon != nil {
		mood = append(mood, fmt.Sprintf("夕(%s)", log.MoodAfternoon))
	}
	if len(mood) > 0 {
		w.blank()
		w.textLines([]string{joinParts("機嫌", mood)})
	}

	if log.Sleepings != nil {
		w.blank()
		w.textLines([]string{joinParts("午睡", []string{log.Sleepings.String()})})
	}

	r.readings(w, log)
	return w.finish(), nil
}

func (r Renderer) readings(w *writer, log DailyLog) {
	readings := log.Readings()
	if len(readings) == 0 {
		return
	}
	var lines []string
	for _, reading := range readings {
		at, _ := TimeOfDay(string(reading.Time))
		if at == "" {
			lines = append(lines, fmt.Sprintf("%s℃", reading.Value))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s℃ (%s)", reading.Value, at))
	}
	w.blank()
	w.lines = append(w.lines, "**検温**", "")
	w.textLines(lines)
}

// parentContentFields are tried in order for the log written by parents.
var parentContentFields = []string{"comment", "content"}

func parentLog(r Renderer, rec record.Record) ([]string, error) {
	content, ok := firstText(rec, parentContentFields)
	if !ok {
		return nil, fmt.Errorf("%w: no content field", ErrMalformedContent)
	}
	log, err := ParseDailyLog(content)
	if err != nil {
		return nil, err
	}

	w := &writer{}
	w.heading("連絡帳（保護者）")
	err = timestampField(w, rec)
	if err != nil {
		return nil, err
	}

	var mood []string
	if log.MoodEvening != nil {
		mood = append(mood, fmt.Sprintf("夕(%s)", log.MoodEvening))
	} else if log.MoodAfternoon != nil {
		mood = append(mood, fmt.Sprintf("夕(%s)", log.MoodAfternoon))
	}
	if log.MoodMorning != nil {
		mood = append(mood, fmt.Sprintf("朝(%s)", log.MoodMorning))
	}
	if len(mood) > 0 {
		w.blank()
		w.textLines([]string{joinParts("機嫌", mood)})
	}

	var bowel []string
	if log.EvacuationEvening != nil {
		bowel = append(bowel, evacuation("夕", log.EvacuationEvening, log.EvacuationEveningTimes))
	}
	if log.EvacuationMorning != nil {
		bowel = append(bowel, evacuation("朝", log.EvacuationMorning, log.EvacuationMorningTimes))
	}
	if len(bowel) > 0 {
		w.blank()
		w.textLines([]string{joinParts("排便", bowel)})
	}

	var sleep []string
	if log.Sleep != nil {
		sleep = append(sleep, fmt.Sprintf("就寝(%s)", log.Sleep))
	}
	if log.Wake != nil {
		sleep = append(sleep, fmt.Sprintf("起床(%s)", log.Wake))
	}
	if len(sleep) > 0 {
		w.blank()
		w.textLines([]string{joinParts("睡眠", sleep)})
	}

	if log.MealEvening != nil {
		r.section(w, "夕食", log.MealEvening.String())
	}
	if log.MealMorning != nil {
		r.section(w, "朝食", log.MealMorning.String())
	}

	r.readings(w, log)

	if log.Memo != nil {
		r.section(w, "メモ", log.Memo.String())
	}
	return w.finish(), nil
}

func evacuation(when string, state, times *Text) string {
	if times != nil {
		return fmt.Sprintf("%s(%s %s回)", when, state, times)
	}
	return fmt.Sprintf("%s(%s)", when, state)
}
