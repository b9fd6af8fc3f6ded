package record

import (
	"testing"
	"time"

	"carebook/internal/components/chrono"

	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, category Category, data string) Record {
	t.Helper()
	r, err := Decode(category, []byte(data))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestDisplayDateOrder(t *testing.T) {
	testCases := []struct {
		name     string
		category Category
		data     string
		expected string
	}{
		{
			name:     "display date wins",
			category: Timeline,
			data:     `{"id": 1, "display_date": "2023-11-05", "insert_datetime": "2023-11-04 08:00:00"}`,
			expected: "2023-11-05",
		},
		{
			name:     "insert datetime",
			category: Comment,
			data:     `{"id": 2, "insert_datetime": "2022-04-01 15:42:09", "start_date": "2022-03-01"}`,
			expected: "2022-04-01",
		},
		{
			name:     "start date",
			category: Timeline,
			data:     `{"id": 3, "timeline_kind": "bills", "start_date": "2022-03-01"}`,
			expected: "2022-03-01",
		},
		{
			name:     "publish datetime",
			category: Handout,
			data:     `{"handoutId": "h1", "title": "x", "publishFromDateTime": "2022-04-01T10:40:44Z"}`,
			expected: "2022-04-01",
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			r := mustDecode(t, test.category, test.data)
			d, err := r.DisplayDate()
			require.NoError(t, err)
			require.Equal(t, test.expected, d.String())
		})
	}
}

func TestUnrecognizedDate(t *testing.T) {
	r := mustDecode(t, ContactResponse, `{"id": 9, "title": "no dates"}`)
	_, err := r.DisplayDate()
	require.ErrorIs(t, err, ErrUnrecognizedDate)
	require.ErrorContains(t, err, "contact-response")

	_, err = Classify(r, NewWindow(chrono.MustParseDate("2023-11-01"), chrono.MustParseDate("2023-11-30")))
	require.ErrorIs(t, err, ErrUnrecognizedDate)

	_, err = r.Timestamp()
	require.ErrorIs(t, err, ErrUnrecognizedTimestamp)
}

func TestTimestamp(t *testing.T) {
	r := mustDecode(t, Comment, `{"id": 1, "update_datetime": "2023-11-05 07:30:00"}`)
	ts, err := r.Timestamp()
	require.NoError(t, err)
	require.Equal(t, time.Date(2023, 11, 5, 7, 30, 0, 0, time.UTC), ts)

	r = mustDecode(t, Comment, `{"id": 1, "insert_datetime": "yesterday"}`)
	_, err = r.Timestamp()
	require.ErrorIs(t, err, ErrUnrecognizedTimestamp)
}

func TestKindAndIdentity(t *testing.T) {
	testCases := []struct {
		name     string
		category Category
		data     string
		kind     Kind
		identity string
	}{
		{
			name:     "timeline kind field",
			category: Timeline,
			data:     `{"id": 120, "kind": "4", "timeline_kind": "topics", "display_date": "2023-11-05"}`,
			kind:     "4",
			identity: "2023-11-05_120",
		},
		{
			name:     "bill keyed by start date",
			category: Timeline,
			data:     `{"id": 7, "timeline_kind": "bills", "start_date": "2023-10-01", "insert_datetime": "2023-10-03 10:00:00"}`,
			kind:     KindBills,
			identity: "2023-10-01_7",
		},
		{
			name:     "handout with slash in title",
			category: Handout,
			data:     `{"handoutId": "a-b", "title": "献立表 11/12月", "publishFromDateTime": "2023-11-01T00:00:00Z"}`,
			kind:     KindHandout,
			identity: "2023-11-01 [献立表 11／12月]_a-b",
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			r := mustDecode(t, test.category, test.data)
			require.Equal(t, test.kind, r.Kind)
			id, err := r.Identity()
			require.NoError(t, err)
			require.Equal(t, test.identity, id)
		})
	}
}

func TestMissingID(t *testing.T) {
	_, err := Decode(Timeline, []byte(`{"display_date": "2023-11-05"}`))
	require.ErrorIs(t, err, ErrMissingID)
}

func TestEncodeKeepsNumbersAndHTML(t *testing.T) {
	r := mustDecode(t, Timeline, `{"id": 12345678901234567, "content": "<p>a&b</p>"}`)
	out, err := r.Encode()
	require.NoError(t, err)
	require.Equal(t, "{\n    \"content\": \"<p>a&b</p>\",\n    \"id\": 12345678901234567\n}\n", string(out))
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("contact_responses")
	require.NoError(t, err)
	require.Equal(t, ContactResponse, c)

	_, err = ParseCategory("photos")
	require.Error(t, err)
}
