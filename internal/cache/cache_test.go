package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"carebook/internal/components/telemetry"
	"carebook/internal/record"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, category record.Category, data string) record.Record {
	t.Helper()
	r, err := record.Decode(category, []byte(data))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		contents, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out[rel] = string(contents)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestPutGetAll(t *testing.T) {
	root := t.TempDir()
	store := New(root, telemetry.NewRecordingAPI())

	records := []record.Record{
		decode(t, record.Timeline, `{"id": 2, "kind": "1", "display_date": "2023-11-20", "title": "遠足"}`),
		decode(t, record.Timeline, `{"id": 1, "kind": "1", "display_date": "2023-11-05", "title": "お知らせ"}`),
		decode(t, record.Timeline, `{"id": 3, "timeline_kind": "bills", "start_date": "2023-10-01"}`),
	}
	for _, r := range records {
		_, err := store.Put(r, "ひまわり保育園")
		require.NoError(t, err)
	}

	tree := readTree(t, root)
	var names []string
	for name := range tree {
		names = append(names, name)
	}
	sort.Strings(names)
	expected := []string{
		filepath.Join("ひまわり保育園", "timeline", "2023-10-01_3.json"),
		filepath.Join("ひまわり保育園", "timeline", "2023-11-05_1.json"),
		filepath.Join("ひまわり保育園", "timeline", "2023-11-20_2.json"),
	}
	diff := cmp.Diff(expected, names)
	if diff != "" {
		t.Fatal("unexpected cache layout", diff)
	}

	got, err := store.GetAll(record.Timeline, "ひまわり保育園")
	require.NoError(t, err)
	require.Len(t, got, 3)

	count, err := store.Count(record.Timeline, "ひまわり保育園")
	require.NoError(t, err)
	require.Equal(t, 3, count)

	none, err := store.GetAll(record.Comment, "ひまわり保育園")
	require.NoError(t, err)
	require.Len(t, none, 0)

	services, err := store.Services()
	require.NoError(t, err)
	require.Equal(t, []string{"ひまわり保育園"}, services)
}

func TestPutIdempotent(t *testing.T) {
	root := t.TempDir()
	store := New(root, telemetry.NewRecordingAPI())
	r := decode(t, record.Comment, `{"id": 9, "kind": "2", "display_date": "2023-11-05", "content": "{\"memo\": \"<p>ok</p>\"}"}`)

	_, err := store.Put(r, "svc")
	require.NoError(t, err)
	first := readTree(t, root)

	_, err = store.Put(r, "svc")
	require.NoError(t, err)
	second := readTree(t, root)

	diff := cmp.Diff(first, second)
	if diff != "" {
		t.Fatal("second put changed the cache", diff)
	}
	require.Len(t, second, 1)
}

func TestPutUnrecognizedDate(t *testing.T) {
	store := New(t.TempDir(), telemetry.NewRecordingAPI())
	_, err := store.Put(decode(t, record.Timeline, `{"id": 1, "kind": "1"}`), "svc")
	require.ErrorIs(t, err, record.ErrUnrecognizedDate)
}

func TestHandoutsAreFlat(t *testing.T) {
	root := t.TempDir()
	store := New(root, telemetry.NewRecordingAPI())
	r := decode(t, record.Handout, `{"handoutId": "h1", "title": "献立表", "publishFromDateTime": "2023-11-01T00:00:00Z"}`)

	path, err := store.Put(r, "ignored")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "handouts", "2023-11-01 [献立表]_h1.json"), path)

	services, err := store.Services()
	require.NoError(t, err)
	require.Len(t, services, 0)
}

func TestHandoutsSharingDateAndTitle(t *testing.T) {
	store := New(t.TempDir(), telemetry.NewRecordingAPI())
	for _, id := range []string{"h1", "h2"} {
		r := decode(t, record.Handout, `{"handoutId": "`+id+`", "title": "献立表", "publishFromDateTime": "2023-11-01T00:00:00Z"}`)
		_, err := store.Put(r, "")
		require.NoError(t, err)
	}

	records, err := store.GetAll(record.Handout, "")
	require.NoError(t, err)
	var ids []string
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	require.ElementsMatch(t, []string{"h1", "h2"}, ids)
}

func TestSnapshots(t *testing.T) {
	store := New(t.TempDir(), telemetry.NewRecordingAPI())
	require.NoError(t, store.WriteSnapshot(SnapshotServices, json.RawMessage(`{"1":{"name":"ひまわり保育園"}}`)))

	var services map[string]struct {
		Name string `json:"name"`
	}
	require.NoError(t, store.ReadSnapshot(SnapshotServices, &services))
	require.Equal(t, "ひまわり保育園", services["1"].Name)

	require.Error(t, store.WriteSnapshot(SnapshotChildren, json.RawMessage(`{broken`)))
}
