package notebook

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"sort"

	"carebook/internal/components/osutil"
	"carebook/internal/record"
	"carebook/internal/render"
)

const (
	report_vitals_export    = "vitals.export"
	report_vitals_malformed = "vitals.malformed"
)

const VitalsName = "vitals.csv"

type Vital struct {
	Date   string
	Time   string
	Kind   string
	Value  string
	Source record.Category
}

// dailyLogSources are the (category, kind) pairs whose content is a daily log.
var dailyLogSources = []struct {
	category record.Category
	kind     record.Kind
	fields   []string
}{
	{record.Timeline, "4", []string{"content"}},
	{record.Comment, "2", []string{"comment", "content"}},
}

// Vitals collects temperature and sleep readings from the cached daily logs of a service.
// Logs whose content cannot be parsed are reported and skipped.
func (c Compiler) Vitals(service string) ([]Vital, error) {
	var out []Vital
	for _, src := range dailyLogSources {
		records, err := c.store.GetAll(src.category, service)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if rec.Kind != src.kind {
				continue
			}
			d, err := rec.DisplayDate()
			if err != nil {
				return nil, err
			}
			if !c.opts.Window.Contains(d) {
				continue
			}

			var content string
			for _, field := range src.fields {
				if s, ok := rec.String(field); ok {
					content = s
					break
				}
			}
			log, err := render.ParseDailyLog(content)
			if err != nil {
				c.tel.ReportWarning(report_vitals_malformed, err, rec.Category, rec.ID)
				continue
			}
			out = append(out, vitalsOf(d.String(), src.category, log)...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

func vitalsOf(date string, source record.Category, log render.DailyLog) []Vital {
	var out []Vital
	for _, reading := range log.Readings() {
		at, _ := render.TimeOfDay(string(reading.Time))
		out = append(out, Vital{Date: date, Time: at, Kind: "temperature", Value: string(reading.Value), Source: source})
	}
	if log.Sleepings != nil {
		out = append(out, Vital{Date: date, Kind: "nap", Value: log.Sleepings.String(), Source: source})
	}
	if log.Sleep != nil {
		at, _ := render.TimeOfDay(log.Sleep.String())
		out = append(out, Vital{Date: date, Time: at, Kind: "sleep", Source: source})
	}
	if log.Wake != nil {
		at, _ := render.TimeOfDay(log.Wake.String())
		out = append(out, Vital{Date: date, Time: at, Kind: "wake", Source: source})
	}
	return out
}

// ExportVitals writes <output>/<service>/vitals.csv and returns its path.
func (c Compiler) ExportVitals(service string) (string, error) {
	vitals, err := c.Vitals(service)
	if err != nil {
		c.tel.ReportBroken(report_vitals_export, err, service)
		return "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	err = w.Write([]string{"date", "time", "kind", "value", "source"})
	if err != nil {
		return "", err
	}
	for _, v := range vitals {
		err = w.Write([]string{v.Date, v.Time, v.Kind, v.Value, string(v.Source)})
		if err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	path := filepath.Join(c.opts.OutputDir, record.SanitizeName(service), VitalsName)
	err = osutil.WriteFileAtomic(path, buf.Bytes())
	if err != nil {
		c.tel.ReportBroken(report_vitals_export, err, path)
		return "", err
	}
	return path, nil
}
