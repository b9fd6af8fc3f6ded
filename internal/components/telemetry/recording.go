package telemetry

import (
	"strings"
	"sync"
)

type Level int

const (
	LevelDebug Level = iota
	LevelCount
	LevelWarning
	LevelBroken
)

type Report struct {
	Level  Level
	ID     string
	Params []any
}

// RecordingAPI keeps every report in memory so tests can assert on them.
type RecordingAPI struct {
	mutex   sync.Mutex
	reports []Report
}

func NewRecordingAPI() *RecordingAPI {
	return &RecordingAPI{}
}

func (r *RecordingAPI) add(level Level, id string, params []any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.reports = append(r.reports, Report{Level: level, ID: id, Params: params})
}

func (r *RecordingAPI) ReportBroken(id string, params ...any) {
	r.add(LevelBroken, id, params)
}

func (r *RecordingAPI) ReportWarning(id string, params ...any) {
	r.add(LevelWarning, id, params)
}

func (r *RecordingAPI) ReportDebug(msg string, params ...any) {
	r.add(LevelDebug, msg, params)
}

func (r *RecordingAPI) ReportCount(id string, count int64) {
	r.add(LevelCount, id, []any{count})
}

// Reports returns every report at the given level whose id contains `substr`.
func (r *RecordingAPI) Reports(level Level, substr string) []Report {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var out []Report
	for _, rep := range r.reports {
		if rep.Level == level && strings.Contains(rep.ID, substr) {
			out = append(out, rep)
		}
	}
	return out
}
