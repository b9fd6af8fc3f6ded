package portal_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"carebook/internal/components/chrono"
	"carebook/internal/components/telemetry"
	"carebook/internal/portal"
	"carebook/internal/portal/portaltest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*portaltest.Fake, *chrono.FixedTime, *telemetry.RecordingAPI) {
	fake := portaltest.New(t)
	clock := chrono.NewFixedTime(time.Date(2023, 11, 10, 9, 0, 0, 0, time.UTC))
	return fake, clock, telemetry.NewRecordingAPI()
}

func TestLogin(t *testing.T) {
	fake, clock, tel := setup(t)
	ctx := context.Background()

	client, err := portal.NewClient(portal.Options{BaseURL: fake.Server.URL, HandoutsURL: fake.Server.URL}, clock, tel)
	if err != nil {
		t.Fatal(err)
	}

	valid, err := client.SessionValid(ctx)
	require.NoError(t, err)
	require.False(t, valid)

	err = client.Login(ctx, fake.LoginID, "wrong")
	require.ErrorIs(t, err, portal.ErrInvalidCredentials)

	err = client.Login(ctx, fake.LoginID, fake.Password)
	require.NoError(t, err)
	require.Equal(t, fake.SessionID, client.SessionID())

	cookies := filepath.Join(t.TempDir(), "state", "cookies.json")
	require.NoError(t, client.SaveCookies(cookies))

	restored, err := portal.NewClient(portal.Options{BaseURL: fake.Server.URL, HandoutsURL: fake.Server.URL}, clock, tel)
	if err != nil {
		t.Fatal(err)
	}
	require.NoError(t, restored.LoadCookies(cookies))
	valid, err = restored.SessionValid(ctx)
	require.NoError(t, err)
	require.True(t, valid)

	require.NoError(t, restored.LoadCookies(filepath.Join(t.TempDir(), "missing.json")))
}

func TestCourtesyDelay(t *testing.T) {
	fake, clock, tel := setup(t)
	fake.Services["1"] = "ひまわり保育園"
	client := fake.Client(t, clock, tel)

	before := len(clock.Slept())
	_, err := client.Services(context.Background())
	require.NoError(t, err)
	_, err = client.Download(context.Background(), "/missing")
	require.Error(t, err)

	slept := clock.Slept()[before:]
	require.Equal(t, []time.Duration{time.Second, time.Second}, slept)
}

func TestStatusError(t *testing.T) {
	fake, clock, tel := setup(t)
	client := fake.Client(t, clock, tel)

	_, err := client.Download(context.Background(), "/files/none.pdf")
	var status portal.StatusError
	require.ErrorAs(t, err, &status)
	require.Equal(t, 404, status.Status)
	require.Len(t, tel.Reports(telemetry.LevelBroken, "portal: client.get"), 1)
}

func TestListings(t *testing.T) {
	fake, clock, tel := setup(t)
	ctx := context.Background()

	fake.Services["2"] = "ひまわり保育園"
	fake.Services["10"] = "学童クラブ"
	fake.Children = []map[string]any{
		{
			"id":   5,
			"name": "たろう",
			"child_member_relations": []map[string]any{
				{"service_id": 2, "member_id": 77, "member_open_date": "2022-04-01", "member_close_date": nil},
				{"service_id": 10, "member_id": 78, "member_open_date": "2023-04-01", "member_close_date": "2023-09-30"},
			},
		},
	}
	fake.Timeline["2"] = [][]map[string]any{
		{{"id": 1, "kind": "1", "display_date": "2023-11-05"}},
		{{"id": 2, "kind": "1", "display_date": "2023-11-01"}},
	}
	fake.Comments[portaltest.DayKey("77", "2023-11-05")] = []map[string]any{
		{"id": 3, "kind": "2", "display_date": "2023-11-05"},
	}
	client := fake.Client(t, clock, tel)
	dir := portal.NewDirectory(client)

	services, err := dir.Services(ctx)
	require.NoError(t, err)
	var names []string
	for _, svc := range services.Sorted() {
		names = append(names, svc.ID+":"+svc.Name)
	}
	diff := cmp.Diff([]string{"2:ひまわり保育園", "10:学童クラブ"}, names)
	if diff != "" {
		t.Fatal("unexpected services", diff)
	}

	relations, err := dir.Relations(ctx, "10")
	require.NoError(t, err)
	require.Len(t, relations, 1)
	require.Equal(t, portal.ID("78"), relations[0].MemberID)
	closed, err := relations[0].Close()
	require.NoError(t, err)
	require.Equal(t, "2023-09-30", closed.String())

	relations, err = dir.Relations(ctx, "2")
	require.NoError(t, err)
	open, err := relations[0].Close()
	require.NoError(t, err)
	require.True(t, open.IsZero())

	// the directory only asks once
	_, err = dir.Services(ctx)
	require.NoError(t, err)
	require.Len(t, fake.Requests("/api/v2/parent/services"), 1)
	require.Len(t, fake.Requests("/api/v2/parent/children/"), 1)

	page, err := client.TimelinePage(ctx, "2", 1)
	require.NoError(t, err)
	require.True(t, page.NextPage)
	require.Len(t, page.Records, 1)
	page, err = client.TimelinePage(ctx, "2", 2)
	require.NoError(t, err)
	require.False(t, page.NextPage)

	comments, err := client.Comments(ctx, "77", chrono.MustParseDate("2023-11-05"))
	require.NoError(t, err)
	require.Len(t, comments, 1)
	comments, err = client.Comments(ctx, "77", chrono.MustParseDate("2023-11-06"))
	require.NoError(t, err)
	require.Len(t, comments, 0)
}

func TestHandouts(t *testing.T) {
	fake, clock, tel := setup(t)
	ctx := context.Background()

	fake.Handouts = [][]map[string]any{
		{{"handoutId": "h2", "title": "献立表", "publishFromDateTime": "2023-11-01T00:00:00Z"}},
		{{"handoutId": "h1", "title": "園だより", "publishFromDateTime": "2023-10-01T00:00:00Z"}},
	}
	fake.HandoutDetails["h2"] = map[string]any{"handoutId": "h2", "title": "献立表", "attachments": []any{}}
	client := fake.Client(t, clock, tel)

	page, err := client.HandoutsPage(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Records, 1)

	detail, err := client.Handout(ctx, "h2")
	require.NoError(t, err)
	require.Equal(t, "献立表", detail["title"])
}

func TestMatchService(t *testing.T) {
	services := []portal.Service{
		{ID: "1", Name: "Sunflower Nursery"},
		{ID: "2", Name: "After School Club"},
	}
	tel := telemetry.NewRecordingAPI()

	svc, err := portal.MatchService(services, "sunflower", tel)
	require.NoError(t, err)
	require.Equal(t, "1", svc.ID)

	svc, err = portal.MatchService(services, "2", tel)
	require.NoError(t, err)
	require.Equal(t, "After School Club", svc.Name)

	_, err = portal.MatchService(services, "zzzz", tel)
	require.Error(t, err)
}
