// client.go is the authenticated transport, it knows nothing about the endpoints it is
// used for beyond the JSON envelope they share.

package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"carebook/internal/components/assert"
	"carebook/internal/components/chrono"
	"carebook/internal/components/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

const (
	report_client_get      = "client.get"
	report_client_get_json = "client.get-json"
)

const (
	DefaultBaseURL     = "https://ps-api.codmon.com"
	DefaultHandoutsURL = "https://api-reference-room.codmon.com"

	apiPath = "/api/v2/parent"
)

var (
	// ErrNotSuccess is returned when the envelope of a response reports success=false.
	ErrNotSuccess         = errors.New("portal reported failure")
	ErrInvalidCredentials = errors.New("invalid login id or password")
)

// StatusError is returned for any response with a non-2xx status.
type StatusError struct {
	Status int
	URL    string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Status)
}

type Options struct {
	BaseURL     string
	HandoutsURL string
	// Delay is slept after every request regardless of its outcome.
	Delay   time.Duration
	Timeout time.Duration
	// DumpDir, when set, receives a copy of every request and response.
	DumpDir string
}

type Client struct {
	http        *resty.Client
	jar         *cookiejar.Jar
	baseURL     *url.URL
	handoutsURL *url.URL
	delay       time.Duration

	time chrono.TimeAPI
	tel  telemetry.API
}

func NewClient(opts Options, timeAPI chrono.TimeAPI, tel telemetry.API) (*Client, error) {
	assert.NotNil(timeAPI)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("portal", tel)

	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HandoutsURL == "" {
		opts.HandoutsURL = DefaultHandoutsURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 30
	}

	baseURL, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	handoutsURL, err := url.Parse(opts.HandoutsURL)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseURL)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)

	httpClient.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	httpClient.SetTimeout(opts.Timeout)

	telemetry.InstrumentResty(httpClient, tel)
	if opts.DumpDir != "" {
		err = telemetry.DumpResty(httpClient, opts.DumpDir, tel)
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		http:        httpClient,
		jar:         jar,
		baseURL:     baseURL,
		handoutsURL: handoutsURL,
		delay:       opts.Delay,
		time:        timeAPI,
		tel:         tel,
	}, nil
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Get performs an authenticated GET, `target` may be absolute or relative to the base url.
// Any non-2xx status is returned as a StatusError.
func (c *Client) Get(ctx context.Context, target string, headers map[string]string) (Response, error) {
	return c.get(ctx, target, nil, headers)
}

func (c *Client) get(ctx context.Context, target string, query url.Values, headers map[string]string) (Response, error) {
	defer c.time.Sleep(c.delay)

	req := c.http.R().
		SetContext(ctx).
		SetHeaders(headers)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	res, err := req.Get(target)
	if err != nil {
		c.tel.ReportBroken(report_client_get, err, target)
		return Response{}, err
	}
	if !res.IsSuccess() {
		err := StatusError{Status: res.StatusCode(), URL: res.Request.URL}
		c.tel.ReportBroken(report_client_get, err)
		return Response{}, err
	}
	return Response{
		Status: res.StatusCode(),
		Header: res.Header(),
		Body:   res.Body(),
	}, nil
}

type envelope struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data"`
	NextPage bool            `json:"next_page"`
	Error    any             `json:"error"`
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values) (envelope, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("__env__", "myapp")

	res, err := c.get(ctx, apiPath+path, query, nil)
	if err != nil {
		return envelope{}, err
	}

	var env envelope
	err = json.Unmarshal(res.Body, &env)
	if err != nil {
		c.tel.ReportBroken(report_client_get_json, fmt.Errorf("unmarshal: %w", err), path)
		return envelope{}, err
	}
	if !env.Success {
		err := fmt.Errorf("%w: %s (%v)", ErrNotSuccess, path, env.Error)
		c.tel.ReportBroken(report_client_get_json, err)
		return envelope{}, err
	}
	return env, nil
}

// decodeObjects decodes a JSON array of objects keeping numbers as json.Number.
func decodeObjects(data []byte) ([]map[string]any, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out []map[string]any
	err := dec.Decode(&out)
	return out, err
}

func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	err := dec.Decode(&out)
	return out, err
}
