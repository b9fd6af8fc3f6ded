package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

const (
	report_session_login        = "session.login"
	report_session_probe        = "session.probe"
	report_session_save_cookies = "session.save-cookies"
)

// SessionCookie carries the session id, the reference room expects it as the
// authorization header.
const SessionCookie = "CODMONSESSID"

// Login posts the credentials and verifies the resulting session with the probe.
func (c *Client) Login(ctx context.Context, loginID, password string) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("__env__", "myapp").
		SetFormData(map[string]string{
			"login_id":       loginID,
			"login_password": password,
		}).
		Post(apiPath + "/login")
	c.time.Sleep(c.delay)
	if err != nil {
		c.tel.ReportBroken(report_session_login, err)
		return err
	}
	if !res.IsSuccess() {
		c.tel.ReportWarning(report_session_login, res.StatusCode())
		return fmt.Errorf("%w: status %d", ErrInvalidCredentials, res.StatusCode())
	}

	valid, err := c.SessionValid(ctx)
	if err != nil {
		return err
	}
	if !valid {
		return ErrInvalidCredentials
	}
	return nil
}

// SessionValid reports whether the current cookies belong to a logged in session.
func (c *Client) SessionValid(ctx context.Context) (bool, error) {
	_, err := c.Get(ctx, apiPath+"/parents", nil)
	var status StatusError
	if errors.As(err, &status) {
		c.tel.ReportDebug("session probe rejected", status.Status)
		return false, nil
	}
	if err != nil {
		c.tel.ReportBroken(report_session_probe, err)
		return false, err
	}
	return true, nil
}

// SessionID returns the value of the session cookie or "" when there is none.
func (c *Client) SessionID() string {
	for _, cookie := range c.jar.Cookies(c.baseURL) {
		if cookie.Name == SessionCookie {
			return cookie.Value
		}
	}
	return ""
}

type savedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// cookieFile maps a site url to the cookies the jar would send to it.
type cookieFile map[string][]savedCookie

func (c *Client) cookieSites() []*url.URL {
	return []*url.URL{c.baseURL, c.handoutsURL}
}

// SaveCookies persists the session so the next run can skip logging in.
func (c *Client) SaveCookies(path string) error {
	out := cookieFile{}
	for _, site := range c.cookieSites() {
		var cookies []savedCookie
		for _, cookie := range c.jar.Cookies(site) {
			cookies = append(cookies, savedCookie{Name: cookie.Name, Value: cookie.Value})
		}
		if len(cookies) > 0 {
			out[site.String()] = cookies
		}
	}

	serialized, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	err = os.MkdirAll(filepath.Dir(path), 0700)
	if err != nil {
		return err
	}
	err = os.WriteFile(path, serialized, 0600)
	if err != nil {
		c.tel.ReportBroken(report_session_save_cookies, err, path)
		return err
	}
	return nil
}

// LoadCookies restores cookies written by SaveCookies, a missing file is not an error.
func (c *Client) LoadCookies(path string) error {
	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var in cookieFile
	err = json.Unmarshal(contents, &in)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for site, saved := range in {
		u, err := url.Parse(site)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		cookies := make([]*http.Cookie, 0, len(saved))
		for _, s := range saved {
			cookies = append(cookies, &http.Cookie{Name: s.Name, Value: s.Value, Path: "/"})
		}
		c.jar.SetCookies(u, cookies)
	}
	return nil
}
