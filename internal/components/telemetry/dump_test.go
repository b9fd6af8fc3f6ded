package telemetry

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func TestDumpResty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "CODMONSESSID", Value: "secret-session"})
		w.Write([]byte(`{"success": true}`))
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "dump")
	client := resty.New()
	require.NoError(t, DumpResty(client, dir, NewRecordingAPI()))

	_, err := client.R().SetHeader("authorization", "secret-token").Get(server.URL + "/parents")
	require.NoError(t, err)

	contents, err := os.ReadFile(filepath.Join(dir, "00001.txt"))
	require.NoError(t, err)
	dump := string(contents)
	require.Contains(t, dump, "GET "+server.URL+"/parents")
	require.Contains(t, dump, "200 OK")
	require.Contains(t, dump, `{"success": true}`)
	require.Contains(t, dump, "Set-Cookie: <redacted>")
	require.NotContains(t, dump, "secret-session")
	require.NotContains(t, dump, "secret-token")
}
