package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"carebook/internal/components/assert"
	"carebook/internal/components/osutil"
	"carebook/internal/components/telemetry"
	"carebook/internal/record"
)

const (
	report_store_put      = "store.put"
	report_store_get_all  = "store.get-all"
	report_store_snapshot = "store.snapshot"
)

const (
	SnapshotServices = "services"
	SnapshotChildren = "children"
)

const recordExt = ".json"

// Store keeps one JSON file per record under
// <root>/<service>/<category dir>/<identity>.json, handouts live under <root>/handouts.
type Store struct {
	root string
	tel  telemetry.API
}

func New(root string, tel telemetry.API) Store {
	assert.NotEmptyStr(root)
	assert.NotNil(tel)
	return Store{root: root, tel: telemetry.NewScopedAPI("cache", tel)}
}

func (s Store) Root() string {
	return s.root
}

// Dir is the directory records of (category, service) are kept in.
func (s Store) Dir(category record.Category, service string) string {
	if !category.PerService() {
		return filepath.Join(s.root, category.Dir())
	}
	return filepath.Join(s.root, record.SanitizeName(service), category.Dir())
}

// Put writes the record under its identity, replacing an entry with the same identity.
// It returns the path written.
func (s Store) Put(r record.Record, service string) (string, error) {
	identity, err := r.Identity()
	if err != nil {
		s.tel.ReportBroken(report_store_put, err, r.Category, service)
		return "", err
	}
	contents, err := r.Encode()
	if err != nil {
		s.tel.ReportBroken(report_store_put, err, r.Category, identity)
		return "", err
	}

	path := filepath.Join(s.Dir(r.Category, service), identity+recordExt)
	err = osutil.WriteFileAtomic(path, contents)
	if err != nil {
		s.tel.ReportBroken(report_store_put, err, path)
		return "", err
	}
	return path, nil
}

// GetAll reads every cached record of (category, service) regardless of its date.
// A directory that was never written to yields no records.
func (s Store) GetAll(category record.Category, service string) ([]record.Record, error) {
	dir := s.Dir(category, service)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		s.tel.ReportBroken(report_store_get_all, err, dir)
		return nil, err
	}

	var out []record.Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		contents, err := os.ReadFile(path)
		if err != nil {
			s.tel.ReportBroken(report_store_get_all, err, path)
			return nil, err
		}
		r, err := record.Decode(category, contents)
		if err != nil {
			s.tel.ReportBroken(report_store_get_all, err, path)
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Count is the number of cached records of (category, service).
func (s Store) Count(category record.Category, service string) (int, error) {
	entries, err := os.ReadDir(s.Dir(category, service))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), recordExt) && !strings.HasPrefix(e.Name(), ".") {
			n++
		}
	}
	return n, nil
}

// Services lists the service directories present in the cache.
func (s Store) Services() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != record.Handout.Dir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// WriteSnapshot stores a listing as <root>/<name>.json, indented.
func (s Store) WriteSnapshot(name string, data json.RawMessage) error {
	var buf bytes.Buffer
	err := json.Indent(&buf, data, "", "    ")
	if err != nil {
		s.tel.ReportBroken(report_store_snapshot, err, name)
		return err
	}
	buf.WriteByte('\n')
	return osutil.WriteFileAtomic(filepath.Join(s.root, name+".json"), buf.Bytes())
}

// ReadSnapshot decodes a snapshot written by WriteSnapshot into `out`.
func (s Store) ReadSnapshot(name string, out any) error {
	contents, err := os.ReadFile(filepath.Join(s.root, name+".json"))
	if err != nil {
		return err
	}
	return json.Unmarshal(contents, out)
}
