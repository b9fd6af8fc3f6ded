package walker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"carebook/internal/components/chrono"
	"carebook/internal/components/telemetry"
	"carebook/internal/portal"
	"carebook/internal/record"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	timeline  [][]map[string]any
	nextPage  func(page int) bool
	comments  map[string][]map[string]any
	handouts  [][]map[string]any
	details   map[string]map[string]any
	failPage  int
	relations []portal.Relation

	pages    []int
	days     []string
	detailed []string
}

func (f *fakeSource) TimelinePage(ctx context.Context, serviceID string, page int) (portal.Page, error) {
	f.pages = append(f.pages, page)
	if page == f.failPage {
		return portal.Page{}, portal.StatusError{Status: 500, URL: "/timeline/"}
	}
	if f.nextPage != nil {
		return portal.Page{Records: f.timeline[0], NextPage: f.nextPage(page)}, nil
	}
	if page > len(f.timeline) {
		return portal.Page{}, nil
	}
	return portal.Page{Records: f.timeline[page-1], NextPage: page < len(f.timeline)}, nil
}

func (f *fakeSource) Comments(ctx context.Context, memberID string, day chrono.Date) ([]map[string]any, error) {
	key := memberID + "/" + day.String()
	f.days = append(f.days, key)
	return f.comments[key], nil
}

func (f *fakeSource) ContactResponses(ctx context.Context, memberID string, day chrono.Date) ([]map[string]any, error) {
	return f.Comments(ctx, memberID, day)
}

func (f *fakeSource) HandoutsPage(ctx context.Context, page int) (portal.HandoutPage, error) {
	f.pages = append(f.pages, page)
	return portal.HandoutPage{Records: f.handouts[page-1], TotalPages: len(f.handouts)}, nil
}

func (f *fakeSource) Handout(ctx context.Context, id string) (map[string]any, error) {
	f.detailed = append(f.detailed, id)
	return f.details[id], nil
}

func (f *fakeSource) Relations(ctx context.Context, serviceID string) ([]portal.Relation, error) {
	return f.relations, nil
}

func post(id int, date string) map[string]any {
	return map[string]any{"id": id, "kind": "1", "display_date": date}
}

func window(start, end string) record.Window {
	return record.NewWindow(chrono.MustParseDate(start), chrono.MustParseDate(end))
}

func newWalker(source *fakeSource, w record.Window, tel telemetry.API) Walker {
	clock := chrono.NewFixedTime(time.Date(2023, 11, 10, 9, 0, 0, 0, time.UTC))
	return New(source, source, Options{Window: w, MaxPages: 5}, clock, tel)
}

func collect(t *testing.T, w Walker, category record.Category) ([]string, error) {
	t.Helper()
	var ids []string
	for r, err := range w.Walk(context.Background(), category, "1") {
		if err != nil {
			return ids, err
		}
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func TestWalkTimeline(t *testing.T) {
	testCases := []struct {
		name     string
		window   record.Window
		timeline [][]map[string]any
		expected []string
		pages    []int
	}{
		{
			name:   "stops at first record before the window",
			window: window("2023-11-10", "2023-11-03"),
			timeline: [][]map[string]any{
				{post(1, "2023-11-12"), post(2, "2023-11-10"), post(3, "2023-11-05")},
				{post(4, "2023-11-03"), post(5, "2023-11-02"), post(6, "2023-11-04")},
				{post(7, "2023-11-01")},
			},
			expected: []string{"2", "3", "4"},
			pages:    []int{1, 2},
		},
		{
			name:   "stops when there is no next page",
			window: record.AllTime,
			timeline: [][]map[string]any{
				{post(1, "2023-11-12")},
				{post(2, "2023-11-10")},
			},
			expected: []string{"1", "2"},
			pages:    []int{1, 2},
		},
		{
			name:   "everything newer than the window",
			window: window("2023-10-01", "2023-10-31"),
			timeline: [][]map[string]any{
				{post(1, "2023-11-12"), post(2, "2023-11-10")},
			},
			expected: nil,
			pages:    []int{1},
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			source := &fakeSource{timeline: test.timeline}
			ids, err := collect(t, newWalker(source, test.window, telemetry.NewRecordingAPI()), record.Timeline)
			require.NoError(t, err)

			diff := cmp.Diff(test.expected, ids)
			if diff != "" {
				t.Fatal("unexpected records", diff)
			}
			require.Equal(t, test.pages, source.pages)
		})
	}
}

func TestWalkPageCeiling(t *testing.T) {
	source := &fakeSource{
		timeline: [][]map[string]any{{post(1, "2023-11-10")}},
		nextPage: func(int) bool { return true },
	}
	tel := telemetry.NewRecordingAPI()

	ids, err := collect(t, newWalker(source, record.AllTime, tel), record.Timeline)
	require.NoError(t, err)
	require.Len(t, ids, 5)
	require.Equal(t, []int{1, 2, 3, 4, 5}, source.pages)
	require.Len(t, tel.Reports(telemetry.LevelWarning, "walker: walker.page-ceiling"), 1)
}

func TestWalkTransportFailure(t *testing.T) {
	source := &fakeSource{
		timeline: [][]map[string]any{{post(1, "2023-11-10")}, {post(2, "2023-11-09")}},
		failPage: 2,
	}
	tel := telemetry.NewRecordingAPI()

	ids, err := collect(t, newWalker(source, record.AllTime, tel), record.Timeline)
	var status portal.StatusError
	require.ErrorAs(t, err, &status)
	require.Equal(t, []string{"1"}, ids)
	require.Len(t, tel.Reports(telemetry.LevelBroken, "walker.walk"), 1)
}

func TestWalkUnrecognizedDate(t *testing.T) {
	source := &fakeSource{
		timeline: [][]map[string]any{{{"id": 1, "kind": "1"}}},
	}
	_, err := collect(t, newWalker(source, window("2023-11-01", "2023-11-30"), telemetry.NewRecordingAPI()), record.Timeline)
	require.ErrorIs(t, err, record.ErrUnrecognizedDate)
}

func TestWalkConsumerStops(t *testing.T) {
	source := &fakeSource{
		timeline: [][]map[string]any{{post(1, "2023-11-10"), post(2, "2023-11-09")}, {post(3, "2023-11-08")}},
	}
	w := newWalker(source, record.AllTime, telemetry.NewRecordingAPI())
	for r, err := range w.Walk(context.Background(), record.Timeline, "1") {
		require.NoError(t, err)
		require.Equal(t, "1", r.ID)
		break
	}
	require.Equal(t, []int{1}, source.pages)
}

func TestWalkDays(t *testing.T) {
	comment := func(id int, date string) map[string]any {
		return map[string]any{"id": id, "kind": "2", "display_date": date}
	}

	t.Run("window bounds the days", func(t *testing.T) {
		source := &fakeSource{
			relations: []portal.Relation{{ServiceID: "1", MemberID: "77", OpenDate: "2022-04-01"}},
			comments: map[string][]map[string]any{
				"77/2023-11-09": {comment(1, "2023-11-09")},
				"77/2023-11-08": {comment(2, "2023-11-08")},
			},
		}
		ids, err := collect(t, newWalker(source, window("2023-11-10", "2023-11-08"), telemetry.NewRecordingAPI()), record.Comment)
		require.NoError(t, err)
		require.Equal(t, []string{"1", "2"}, ids)
		require.Equal(t, []string{"77/2023-11-10", "77/2023-11-09", "77/2023-11-08"}, source.days)
	})

	t.Run("membership bounds the days without a window", func(t *testing.T) {
		source := &fakeSource{
			relations: []portal.Relation{
				{ServiceID: "1", MemberID: "77", OpenDate: "2023-09-28", CloseDate: "2023-09-30"},
				{ServiceID: "1", MemberID: "78", OpenDate: "2023-11-09"},
			},
		}
		_, err := collect(t, newWalker(source, record.AllTime, telemetry.NewRecordingAPI()), record.ContactResponse)
		require.NoError(t, err)
		expected := []string{
			"77/2023-09-30", "77/2023-09-29", "77/2023-09-28",
			"78/2023-11-10", "78/2023-11-09",
		}
		diff := cmp.Diff(expected, source.days)
		if diff != "" {
			t.Fatal("unexpected days", diff)
		}
	})
}

func TestWalkHandouts(t *testing.T) {
	listing := func(id, published string) map[string]any {
		return map[string]any{"handoutId": id, "title": "title " + id, "publishFromDateTime": published}
	}
	source := &fakeSource{
		handouts: [][]map[string]any{
			{listing("h4", "2023-12-01T00:00:00Z"), listing("h3", "2023-11-20T00:00:00Z")},
			{listing("h2", "2023-11-02T00:00:00Z"), listing("h1", "2023-10-01T00:00:00Z")},
			{listing("h0", "2023-09-01T00:00:00Z")},
		},
		details: map[string]map[string]any{
			"h3": {"handoutId": "h3", "content": "<p>three</p>"},
			"h2": {"handoutId": "h2", "content": "<p>two</p>"},
		},
	}
	w := newWalker(source, window("2023-11-01", "2023-11-30"), telemetry.NewRecordingAPI())

	var got []record.Record
	for r, err := range w.Walk(context.Background(), record.Handout, "") {
		require.NoError(t, err)
		got = append(got, r)
	}
	require.Len(t, got, 2)
	require.Equal(t, []string{"h3", "h2"}, source.detailed)
	require.Equal(t, []int{1, 2}, source.pages)
	require.Equal(t, "title h3", got[0].Title())
	require.Equal(t, "<p>three</p>", got[0].Text("content"))
}

func TestWalkUnknownCategory(t *testing.T) {
	_, err := collect(t, newWalker(&fakeSource{}, record.AllTime, telemetry.NewRecordingAPI()), record.Category("photos"))
	require.Error(t, err)
	require.False(t, errors.Is(err, errStopped), fmt.Sprint(err))
}
