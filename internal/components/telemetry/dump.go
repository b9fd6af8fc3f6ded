package telemetry

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

const report_dump_write = "dump.write"

// redactedHeaders never reach the dump files.
var redactedHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"Set-Cookie":    true,
}

func formatHeaders(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		for _, v := range headers[k] {
			if redactedHeaders[http.CanonicalHeaderKey(k)] {
				v = "<redacted>"
			}
			lines = append(lines, fmt.Sprintf("%s: %s", k, v))
		}
	}
	return strings.Join(lines, "\n")
}

// 1: request method
// 2: request url
// 3: request headers in ("Key: Value" format)
// 4: response status
// 5: response headers in ("Key: Value" format)
// 6: response body
const messageTemplate = `---- REQUEST ----

%s %s

%s

---- RESPONSE ----

%s

%s

%s`

func formatMessage(res *resty.Response) string {
	var requestHeaders http.Header
	if res.Request.RawRequest != nil {
		requestHeaders = res.Request.RawRequest.Header
	}
	return fmt.Sprintf(
		messageTemplate,
		res.Request.Method, res.Request.URL,
		formatHeaders(requestHeaders),
		res.Status(),
		formatHeaders(res.Header()),
		res.String(),
	)
}

// DumpResty writes every response `client` receives, together with its request, to a
// numbered file under `dir`. Request bodies are left out since the login form carries
// the password.
func DumpResty(client *resty.Client, dir string, tel API) error {
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		return err
	}
	var counter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := atomic.AddUint64(&counter, 1)
		path := filepath.Join(dir, fmt.Sprintf("%05d.txt", id))
		err := os.WriteFile(path, []byte(formatMessage(res)), 0600)
		if err != nil {
			tel.ReportWarning(report_dump_write, err, path)
		}
		return nil
	})
	return nil
}
