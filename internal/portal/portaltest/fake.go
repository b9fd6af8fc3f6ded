// Package portaltest runs an in-memory stand-in of the portal for tests.
package portaltest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"carebook/internal/components/chrono"
	"carebook/internal/components/telemetry"
	"carebook/internal/portal"
)

type File struct {
	ContentDisposition string
	Body               []byte
}

// Fake serves both the parent api and the reference room api from a single server.
// Fields may be filled in before the first request is made.
type Fake struct {
	Server *httptest.Server

	LoginID   string
	Password  string
	SessionID string

	// Services maps a service id to its name.
	Services map[string]string
	Children []map[string]any
	// Timeline holds the pages of each service id, newest first.
	Timeline map[string][][]map[string]any
	// Comments and ContactResponses are keyed by DayKey(member id, day).
	Comments         map[string][]map[string]any
	ContactResponses map[string][]map[string]any
	Handouts         [][]map[string]any
	HandoutDetails   map[string]map[string]any
	// PhotoAlbums maps an album id to its file url.
	PhotoAlbums map[string]string
	// Files maps a request path to the file served there.
	Files map[string]File

	mutex    sync.Mutex
	requests []string
}

func DayKey(memberID string, day string) string {
	return memberID + "/" + day
}

func New(t testing.TB) *Fake {
	f := &Fake{
		LoginID:          "parent@example.com",
		Password:         "hunter2",
		SessionID:        "session-1",
		Services:         map[string]string{},
		Timeline:         map[string][][]map[string]any{},
		Comments:         map[string][]map[string]any{},
		ContactResponses: map[string][]map[string]any{},
		HandoutDetails:   map[string]map[string]any{},
		PhotoAlbums:      map[string]string{},
		Files:            map[string]File{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v2/parent/login", f.login)
	mux.HandleFunc("GET /api/v2/parent/parents", f.authed(f.parents))
	mux.HandleFunc("GET /api/v2/parent/services", f.authed(f.services))
	mux.HandleFunc("GET /api/v2/parent/children/", f.authed(f.children))
	mux.HandleFunc("GET /api/v2/parent/timeline/", f.authed(f.timeline))
	mux.HandleFunc("GET /api/v2/parent/comments/", f.authed(f.daily(func() map[string][]map[string]any { return f.Comments }, "relation_id")))
	mux.HandleFunc("GET /api/v2/parent/contact_responses/", f.authed(f.daily(func() map[string][]map[string]any { return f.ContactResponses }, "member_id")))
	mux.HandleFunc("GET /api/v2/parent/photo_albums/{id}", f.authed(f.photoAlbum))
	mux.HandleFunc("GET /v1/handouts/forParents", f.handoutsPage)
	mux.HandleFunc("GET /v1/handouts/{id}/forParents", f.handout)
	mux.HandleFunc("GET /", f.file)

	f.Server = httptest.NewServer(f.record(mux))
	t.Cleanup(f.Server.Close)
	return f
}

// Client returns a logged in client talking to the fake.
func (f *Fake) Client(t testing.TB, timeAPI chrono.TimeAPI, tel telemetry.API) *portal.Client {
	t.Helper()
	client, err := portal.NewClient(portal.Options{
		BaseURL:     f.Server.URL,
		HandoutsURL: f.Server.URL,
		Delay:       time.Second,
	}, timeAPI, tel)
	if err != nil {
		t.Fatal(err)
	}
	err = client.Login(context.Background(), f.LoginID, f.Password)
	if err != nil {
		t.Fatal(err)
	}
	return client
}

// Requests returns the path and query of every request whose path starts with `prefix`.
func (f *Fake) Requests(prefix string) []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	var out []string
	for _, r := range f.requests {
		if strings.HasPrefix(r, prefix) {
			out = append(out, r)
		}
	}
	return out
}

func (f *Fake) ResetRequests() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.requests = nil
}

func (f *Fake) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mutex.Lock()
		f.requests = append(f.requests, r.URL.RequestURI())
		f.mutex.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *Fake) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(portal.SessionCookie)
		if err != nil || cookie.Value != f.SessionID {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("content-type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		panic(err)
	}
}

func envelope(data any, nextPage bool) map[string]any {
	return map[string]any{
		"success":   true,
		"data":      data,
		"next_page": nextPage,
		"error":     nil,
	}
}

func (f *Fake) login(w http.ResponseWriter, r *http.Request) {
	err := r.ParseForm()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("login_id") != f.LoginID || r.PostForm.Get("login_password") != f.Password {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: portal.SessionCookie, Value: f.SessionID, Path: "/"})
	writeJSON(w, envelope(nil, false))
}

func (f *Fake) parents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, envelope(map[string]any{}, false))
}

func (f *Fake) services(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{}
	for id, name := range f.Services {
		data[id] = map[string]any{"name": name}
	}
	writeJSON(w, envelope(data, false))
}

func (f *Fake) children(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, envelope(f.Children, false))
}

func (f *Fake) timeline(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("listpage"))
	if err != nil || page < 1 {
		http.Error(w, "bad listpage", http.StatusBadRequest)
		return
	}
	pages := f.Timeline[r.URL.Query().Get("service_id")]
	if page > len(pages) {
		writeJSON(w, envelope([]any{}, false))
		return
	}
	writeJSON(w, envelope(pages[page-1], page < len(pages)))
}

func (f *Fake) daily(source func() map[string][]map[string]any, memberParam string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("search_start_display_date") != q.Get("search_end_display_date") {
			http.Error(w, "expected a single day", http.StatusBadRequest)
			return
		}
		records := source()[DayKey(q.Get(memberParam), q.Get("search_start_display_date"))]
		if records == nil {
			records = []map[string]any{}
		}
		writeJSON(w, envelope(records, false))
	}
}

func (f *Fake) photoAlbum(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	fileURL, ok := f.PhotoAlbums[id]
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, envelope(map[string]any{"id": id, "file_url": fileURL}, false))
}

func (f *Fake) checkAuthorization(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("authorization") != f.SessionID {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (f *Fake) handoutsPage(w http.ResponseWriter, r *http.Request) {
	if !f.checkAuthorization(w, r) {
		return
	}
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	var handouts []map[string]any
	if page <= len(f.Handouts) {
		handouts = f.Handouts[page-1]
	}
	writeJSON(w, map[string]any{
		"handouts": handouts,
		"page":     map[string]any{"totalPages": len(f.Handouts)},
	})
}

func (f *Fake) handout(w http.ResponseWriter, r *http.Request) {
	if !f.checkAuthorization(w, r) {
		return
	}
	detail, ok := f.HandoutDetails[r.PathValue("id")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, detail)
}

func (f *Fake) file(w http.ResponseWriter, r *http.Request) {
	file, ok := f.Files[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if file.ContentDisposition != "" {
		w.Header().Set("content-disposition", file.ContentDisposition)
	}
	_, err := w.Write(file.Body)
	if err != nil {
		panic(fmt.Sprintf("write %s: %v", r.URL.Path, err))
	}
}
