package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"carebook/internal/components/chrono"
)

const (
	report_endpoint_services    = "endpoint.services"
	report_endpoint_children    = "endpoint.children"
	report_endpoint_handouts    = "endpoint.handouts"
	report_endpoint_photo_album = "endpoint.photo-album"
)

// ID is an identifier the portal sends either as a JSON number or a string.
type ID string

func (i *ID) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	switch {
	case text == "null":
		*i = ""
	case strings.HasPrefix(text, `"`):
		var s string
		err := json.Unmarshal(data, &s)
		if err != nil {
			return err
		}
		*i = ID(s)
	default:
		*i = ID(text)
	}
	return nil
}

type Service struct {
	ID   string `json:"-"`
	Name string `json:"name"`
}

// Services is the listing of services the account belongs to, Raw is the data exactly
// as it was received.
type Services struct {
	ByID map[string]Service
	Raw  json.RawMessage
}

// Sorted returns the services ordered by id.
func (s Services) Sorted() []Service {
	out := make([]Service, 0, len(s.ByID))
	for _, svc := range s.ByID {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool {
		a, aerr := strconv.Atoi(out[i].ID)
		b, berr := strconv.Atoi(out[j].ID)
		if aerr == nil && berr == nil {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (c *Client) Services(ctx context.Context) (Services, error) {
	env, err := c.getJSON(ctx, "/services", url.Values{"use_image_edge": {"true"}})
	if err != nil {
		return Services{}, err
	}
	var byID map[string]Service
	err = json.Unmarshal(env.Data, &byID)
	if err != nil {
		c.tel.ReportBroken(report_endpoint_services, err)
		return Services{}, fmt.Errorf("services: %w", err)
	}
	for id, svc := range byID {
		svc.ID = id
		byID[id] = svc
	}
	return Services{ByID: byID, Raw: env.Data}, nil
}

// Relation binds a child to a service for the period the child was a member.
type Relation struct {
	ServiceID ID     `json:"service_id"`
	MemberID  ID     `json:"member_id"`
	OpenDate  string `json:"member_open_date"`
	CloseDate string `json:"member_close_date"`
}

func (r Relation) Open() (chrono.Date, error) {
	return chrono.ParseDate(r.OpenDate)
}

// Close returns the zero date while the membership is still open.
func (r Relation) Close() (chrono.Date, error) {
	if r.CloseDate == "" {
		return chrono.Date{}, nil
	}
	return chrono.ParseDate(r.CloseDate)
}

type Child struct {
	ID        ID         `json:"id"`
	Name      string     `json:"name"`
	Relations []Relation `json:"child_member_relations"`
}

type Children struct {
	List []Child
	Raw  json.RawMessage
}

func (c *Client) Children(ctx context.Context) (Children, error) {
	env, err := c.getJSON(ctx, "/children/", url.Values{"use_image_edge": {"true"}})
	if err != nil {
		return Children{}, err
	}
	var list []Child
	err = json.Unmarshal(env.Data, &list)
	if err != nil {
		c.tel.ReportBroken(report_endpoint_children, err)
		return Children{}, fmt.Errorf("children: %w", err)
	}
	return Children{List: list, Raw: env.Data}, nil
}

type Page struct {
	Records  []map[string]any
	NextPage bool
}

// TimelinePage returns page `page` (starting at 1) of a service's timeline, newest first.
func (c *Client) TimelinePage(ctx context.Context, serviceID string, page int) (Page, error) {
	env, err := c.getJSON(ctx, "/timeline/", url.Values{
		"listpage":       {strconv.Itoa(page)},
		"search_type[]":  {"new_all"},
		"service_id":     {serviceID},
		"current_flag":   {"0"},
		"use_image_edge": {"true"},
	})
	if err != nil {
		return Page{}, err
	}
	records, err := decodeObjects(env.Data)
	if err != nil {
		return Page{}, fmt.Errorf("timeline page %d: %w", page, err)
	}
	return Page{Records: records, NextPage: env.NextPage}, nil
}

// Comments returns the caregiver comments of a membership on a single day.
func (c *Client) Comments(ctx context.Context, memberID string, day chrono.Date) ([]map[string]any, error) {
	env, err := c.getJSON(ctx, "/comments/", url.Values{
		"search_kind":               {"2"},
		"relation_id":               {memberID},
		"relation_kind":             {"2"},
		"search_start_display_date": {day.String()},
		"search_end_display_date":   {day.String()},
	})
	if err != nil {
		return nil, err
	}
	return decodeObjects(env.Data)
}

// ContactResponses returns the attendance responses of a membership on a single day.
func (c *Client) ContactResponses(ctx context.Context, memberID string, day chrono.Date) ([]map[string]any, error) {
	env, err := c.getJSON(ctx, "/contact_responses/", url.Values{
		"member_id":                 {memberID},
		"search_start_display_date": {day.String()},
		"search_end_display_date":   {day.String()},
		"search_status_id[]":        {"1", "2", "3"},
		"perpage":                   {"1000"},
	})
	if err != nil {
		return nil, err
	}
	return decodeObjects(env.Data)
}

type HandoutPage struct {
	Records    []map[string]any
	TotalPages int
}

func (c *Client) handoutHeaders() (map[string]string, error) {
	sid := c.SessionID()
	if sid == "" {
		return nil, fmt.Errorf("no %s cookie, log in first", SessionCookie)
	}
	return map[string]string{"authorization": sid}, nil
}

// HandoutsPage returns page `page` (starting at 1) of the reference room listing.
func (c *Client) HandoutsPage(ctx context.Context, page int) (HandoutPage, error) {
	headers, err := c.handoutHeaders()
	if err != nil {
		return HandoutPage{}, err
	}
	target := c.handoutsURL.JoinPath("/v1/handouts/forParents")
	target.RawQuery = url.Values{"page": {strconv.Itoa(page)}}.Encode()

	res, err := c.Get(ctx, target.String(), headers)
	if err != nil {
		return HandoutPage{}, err
	}
	var body struct {
		Handouts json.RawMessage `json:"handouts"`
		Page     struct {
			TotalPages int `json:"totalPages"`
		} `json:"page"`
	}
	err = json.Unmarshal(res.Body, &body)
	if err != nil {
		c.tel.ReportBroken(report_endpoint_handouts, err, page)
		return HandoutPage{}, fmt.Errorf("handouts page %d: %w", page, err)
	}
	records, err := decodeObjects(body.Handouts)
	if err != nil {
		return HandoutPage{}, fmt.Errorf("handouts page %d: %w", page, err)
	}
	return HandoutPage{Records: records, TotalPages: body.Page.TotalPages}, nil
}

// Handout returns the detail of a single handout, including its attachments.
func (c *Client) Handout(ctx context.Context, id string) (map[string]any, error) {
	headers, err := c.handoutHeaders()
	if err != nil {
		return nil, err
	}
	target := c.handoutsURL.JoinPath("/v1/handouts", id, "forParents")
	res, err := c.Get(ctx, target.String(), headers)
	if err != nil {
		return nil, err
	}
	out, err := decodeObject(res.Body)
	if err != nil {
		c.tel.ReportBroken(report_endpoint_handouts, err, id)
		return nil, fmt.Errorf("handout %s: %w", id, err)
	}
	return out, nil
}

type PhotoAlbum struct {
	ID      ID     `json:"id"`
	Title   string `json:"title"`
	FileURL string `json:"file_url"`
}

// PhotoAlbum returns the detail of a photo album, FileURL is the downloadable archive.
func (c *Client) PhotoAlbum(ctx context.Context, id string) (PhotoAlbum, error) {
	env, err := c.getJSON(ctx, "/photo_albums/"+url.PathEscape(id), nil)
	if err != nil {
		return PhotoAlbum{}, err
	}
	var album PhotoAlbum
	err = json.Unmarshal(env.Data, &album)
	if err != nil {
		c.tel.ReportBroken(report_endpoint_photo_album, err, id)
		return PhotoAlbum{}, fmt.Errorf("photo album %s: %w", id, err)
	}
	return album, nil
}

// Download fetches a file referenced by a record, `ref` is usually a path relative to
// the base url.
func (c *Client) Download(ctx context.Context, ref string) (Response, error) {
	return c.Get(ctx, ref, nil)
}
