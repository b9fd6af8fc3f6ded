package notebook

import (
	"os"
	"path/filepath"
	"testing"

	"carebook/internal/cache"
	"carebook/internal/components/telemetry"
	"carebook/internal/record"
	"carebook/internal/render"

	"github.com/stretchr/testify/require"
)

func TestExportVitals(t *testing.T) {
	store := cache.New(t.TempDir(), telemetry.NewRecordingAPI())
	seed(t, store, record.Timeline, map[string]any{
		"id":              10,
		"kind":            "4",
		"display_date":    "2023-11-05",
		"insert_datetime": "2023-11-05 17:00:00",
		"content":         `{"tempratures": [{"temprature": "36.5", "temprature_time": "10:00"}], "sleepings": "12:30-14:00"}`,
	})
	seed(t, store, record.Comment, map[string]any{
		"id":              11,
		"kind":            "2",
		"display_date":    "2023-11-05",
		"insert_datetime": "2023-11-05 07:30:00",
		"comment":         `{"temprature": 36.8, "temprature_time": "07:10", "sleep": "20:30", "wake": "06:45"}`,
	})
	seed(t, store, record.Timeline, map[string]any{
		"id":              12,
		"kind":            "4",
		"display_date":    "2023-11-06",
		"insert_datetime": "2023-11-06 17:00:00",
		"content":         "not json",
	})

	tel := telemetry.NewRecordingAPI()
	out := t.TempDir()
	compiler := NewCompiler(store, render.New(render.Options{}, tel), Options{OutputDir: out}, tel)

	path, err := compiler.ExportVitals(service)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(out, service, VitalsName), path)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `date,time,kind,value,source
2023-11-05,,nap,12:30-14:00,timeline
2023-11-05,06:45,wake,,comment
2023-11-05,07:10,temperature,36.8,comment
2023-11-05,10:00,temperature,36.5,timeline
2023-11-05,20:30,sleep,,comment
`, string(contents))

	require.Len(t, tel.Reports(telemetry.LevelWarning, report_vitals_malformed), 1)
}
