package notebook

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"carebook/internal/cache"
	"carebook/internal/components/assert"
	"carebook/internal/components/chrono"
	"carebook/internal/components/osutil"
	"carebook/internal/components/telemetry"
	"carebook/internal/record"
	"carebook/internal/render"
)

const (
	report_compiler_compile = "compiler.compile"
	report_compiler_records = "compiler.records"
)

const DocExt = ".rst"

// Categories are the categories merged into the month documents of a service.
var Categories = []record.Category{record.Timeline, record.Comment, record.ContactResponse}

type Child struct {
	Name     string
	Birthday chrono.Date
}

type Options struct {
	OutputDir string
	// Window is applied again when compiling, so a compile can be narrower than the fetch.
	Window record.Window
	// Children with a birthday get their age printed in every date header.
	Children []Child
}

// Compiler merges every cached record of a service into one document per month.
type Compiler struct {
	store    cache.Store
	renderer render.Renderer
	opts     Options
	tel      telemetry.API
}

func NewCompiler(store cache.Store, renderer render.Renderer, opts Options, tel telemetry.API) Compiler {
	assert.NotEmptyStr(opts.OutputDir)
	assert.NotNil(tel)
	return Compiler{
		store:    store,
		renderer: renderer,
		opts:     opts,
		tel:      telemetry.NewScopedAPI("notebook", tel),
	}
}

type tagged struct {
	date      chrono.Date
	timestamp time.Time
	rec       record.Record
}

// MonthDocPath is where the document of (service, month) is written.
func MonthDocPath(outputDir, service, month string) string {
	return filepath.Join(outputDir, record.SanitizeName(service), month+DocExt)
}

func (c Compiler) collect(service string) ([]tagged, error) {
	var out []tagged
	for _, category := range Categories {
		records, err := c.store.GetAll(category, service)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			d, err := rec.DisplayDate()
			if err != nil {
				return nil, err
			}
			if !c.opts.Window.Contains(d) {
				continue
			}
			ts, err := rec.Timestamp()
			if err != nil {
				return nil, err
			}
			out = append(out, tagged{date: d, timestamp: ts, rec: rec})
		}
		c.tel.ReportCount(report_compiler_records, int64(len(records)))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if cmp := out[i].date.Compare(out[j].date); cmp != 0 {
			return cmp < 0
		}
		return out[i].timestamp.Before(out[j].timestamp)
	})
	return out, nil
}

var weekdays = []string{"日", "月", "火", "水", "木", "金", "土"}

func (c Compiler) dateTitle(d chrono.Date) string {
	title := fmt.Sprintf("%s (%s)", d, weekdays[d.In(time.UTC).Weekday()])
	for _, child := range c.opts.Children {
		if child.Birthday.IsZero() || d.Before(child.Birthday) {
			continue
		}
		y, m, days := chrono.Age(child.Birthday, d)
		title += fmt.Sprintf(" %s(%d歳%dか月%d日)", child.Name, y, m, days)
	}
	return title
}

type monthDoc struct {
	key   string
	lines []string
}

func (m *monthDoc) add(lines ...string) {
	m.lines = append(m.lines, lines...)
}

// Compile rewrites the month documents of `service` and returns the paths written.
// Compiling twice over the same cache produces identical files.
func (c Compiler) Compile(service string) ([]string, error) {
	records, err := c.collect(service)
	if err != nil {
		c.tel.ReportBroken(report_compiler_compile, err, service)
		return nil, err
	}

	var (
		docs    []*monthDoc
		current *monthDoc
		curDate chrono.Date
	)
	for _, t := range records {
		key := t.date.MonthKey()
		if current == nil || current.key != key {
			current = &monthDoc{key: key}
			docs = append(docs, current)
			current.add(render.OverlinedHeading(fmt.Sprintf("%s %s", render.EscapeTitle(service), key), '#')...)
			curDate = chrono.Date{}
		}
		if curDate != t.date {
			curDate = t.date
			current.add("")
			current.add(render.Heading(c.dateTitle(t.date), '=')...)
		}

		lines, emitted, err := c.renderer.Render(t.rec)
		if err != nil {
			c.tel.ReportBroken(report_compiler_compile, err, service)
			return nil, err
		}
		if !emitted {
			continue
		}
		current.add("")
		current.add(lines...)
	}

	var written []string
	for _, doc := range docs {
		path := MonthDocPath(c.opts.OutputDir, service, doc.key)
		err := osutil.WriteFileAtomic(path, []byte(strings.Join(doc.lines, "\n")+"\n"))
		if err != nil {
			c.tel.ReportBroken(report_compiler_compile, err, path)
			return written, err
		}
		written = append(written, path)
	}
	c.tel.ReportDebug("compiled", service, len(records), len(written))
	return written, nil
}
