package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"carebook/internal/components/chrono"
)

var (
	// ErrUnrecognizedDate means none of the date bearing fields were present or parseable.
	ErrUnrecognizedDate = errors.New("unrecognized date shape")
	// ErrUnrecognizedTimestamp means neither insert_datetime nor update_datetime was usable.
	ErrUnrecognizedTimestamp = errors.New("unrecognized timestamp shape")
	ErrMissingID             = errors.New("record has no id")
)

type Category string

const (
	Timeline        Category = "timeline"
	Comment         Category = "comment"
	ContactResponse Category = "contact-response"
	Handout         Category = "handout"
)

// Categories lists every category in the order they are fetched.
var Categories = []Category{Timeline, Comment, ContactResponse, Handout}

// Dir is the directory name a category is cached under.
func (c Category) Dir() string {
	switch c {
	case Timeline:
		return "timeline"
	case Comment:
		return "comments"
	case ContactResponse:
		return "contact_responses"
	case Handout:
		return "handouts"
	}
	return string(c)
}

// PerService is false for categories that are not scoped to a single service.
func (c Category) PerService() bool {
	return c != Handout
}

func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s || c.Dir() == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category '%s'", s)
}

type Kind string

const (
	KindBills   Kind = "bills"
	KindHandout Kind = "handout"
)

// Record is one server side event. Category, Kind and ID are guaranteed to be set,
// everything else stays in Fields exactly as the server sent it.
type Record struct {
	Category Category
	Kind     Kind
	ID       string
	Fields   map[string]any
}

// New builds a record out of a decoded JSON object.
func New(category Category, fields map[string]any) (Record, error) {
	r := Record{Category: category, Fields: fields}

	idKey := "id"
	if category == Handout {
		idKey = "handoutId"
	}
	id, ok := r.String(idKey)
	if !ok || id == "" {
		return Record{}, fmt.Errorf("%w: category %s", ErrMissingID, category)
	}
	r.ID = id

	switch {
	case category == Handout:
		r.Kind = KindHandout
	default:
		if kind, ok := r.String("kind"); ok {
			r.Kind = Kind(kind)
		} else if kind, ok := r.String("timeline_kind"); ok {
			r.Kind = Kind(kind)
		}
	}
	return r, nil
}

// Decode parses a JSON object, numbers are kept as json.Number so a record written
// back out is unchanged.
func Decode(category Category, data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	err := dec.Decode(&fields)
	if err != nil {
		return Record{}, err
	}
	return New(category, fields)
}

// Encode writes the record's fields as indented JSON without escaping HTML.
func (r Record) Encode() ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	err := enc.Encode(r.Fields)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Has reports whether key is present and not null.
func (r Record) Has(key string) bool {
	v, ok := r.Fields[key]
	return ok && v != nil
}

// String returns a scalar field as text, numbers and booleans are formatted.
func (r Record) String(key string) (string, bool) {
	v, ok := r.Fields[key]
	if !ok || v == nil {
		return "", false
	}
	switch v := v.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case int, int64, float64, bool:
		return fmt.Sprint(v), true
	}
	return "", false
}

// Text returns a string field or "" when absent.
func (r Record) Text(key string) string {
	s, _ := r.String(key)
	return s
}

func (r Record) Object(key string) (map[string]any, bool) {
	v, ok := r.Fields[key].(map[string]any)
	return v, ok
}

func (r Record) List(key string) ([]any, bool) {
	v, ok := r.Fields[key].([]any)
	return v, ok
}

func (r Record) Title() string {
	return r.Text("title")
}

func (r Record) IsBill() bool {
	return r.Text("timeline_kind") == string(KindBills)
}

// DisplayDate is the date the record is grouped and classified under. The fields are
// tried in order: display_date, the date of insert_datetime, start_date and finally
// the date of publishFromDateTime.
func (r Record) DisplayDate() (chrono.Date, error) {
	if s, ok := r.String("display_date"); ok {
		return r.parseDate(s)
	}
	if s, ok := r.String("insert_datetime"); ok {
		// "2022-04-01 15:42:09"
		return r.parseDate(strings.SplitN(s, " ", 2)[0])
	}
	if s, ok := r.String("start_date"); ok {
		return r.parseDate(s)
	}
	if s, ok := r.String("publishFromDateTime"); ok {
		// "2022-04-01T10:40:44Z"
		return r.parseDate(strings.SplitN(s, "T", 2)[0])
	}
	return chrono.Date{}, fmt.Errorf("%w: category %s id %s", ErrUnrecognizedDate, r.Category, r.ID)
}

func (r Record) parseDate(s string) (chrono.Date, error) {
	d, err := chrono.ParseDate(s)
	if err != nil {
		return chrono.Date{}, fmt.Errorf("%w: category %s id %s: %w", ErrUnrecognizedDate, r.Category, r.ID, err)
	}
	return d, nil
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// Timestamp is the finer grained event time used to order records on the same day.
// It is read from insert_datetime, then update_datetime, then publishFromDateTime.
func (r Record) Timestamp() (time.Time, error) {
	for _, key := range []string{"insert_datetime", "update_datetime", "publishFromDateTime"} {
		s, ok := r.String(key)
		if !ok {
			continue
		}
		for _, layout := range timestampLayouts {
			t, err := time.Parse(layout, s)
			if err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: category %s id %s: %s '%s'", ErrUnrecognizedTimestamp, r.Category, r.ID, key, s)
	}
	return time.Time{}, fmt.Errorf("%w: category %s id %s", ErrUnrecognizedTimestamp, r.Category, r.ID)
}
