// Package attachments downloads the files referenced by cached records next to the
// month documents they belong to.
package attachments

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"carebook/internal/components/assert"
	"carebook/internal/components/osutil"
	"carebook/internal/components/telemetry"
	"carebook/internal/portal"
	"carebook/internal/record"
	"carebook/internal/render"
)

const (
	report_attachments_download = "attachments.download"
	report_attachments_skip     = "attachments.skip"
	report_attachments_fetched  = "attachments.fetched"
)

// HandoutsDir is the folder under the output root holding handout attachments.
const HandoutsDir = "handouts"

type Source interface {
	Download(ctx context.Context, ref string) (portal.Response, error)
	PhotoAlbum(ctx context.Context, id string) (portal.PhotoAlbum, error)
}

type Fetcher struct {
	source    Source
	renderer  render.Renderer
	outputDir string
	tel       telemetry.API
}

func New(source Source, renderer render.Renderer, outputDir string, tel telemetry.API) Fetcher {
	assert.NotNil(source)
	assert.NotEmptyStr(outputDir)
	assert.NotNil(tel)
	return Fetcher{
		source:    source,
		renderer:  renderer,
		outputDir: outputDir,
		tel:       telemetry.NewScopedAPI("attachments", tel),
	}
}

// Prefix is the start of every file written for `rec`: "<display date> [<title>]".
func Prefix(rec record.Record) (string, error) {
	d, err := rec.DisplayDate()
	if err != nil {
		return "", err
	}
	return record.SanitizeName(fmt.Sprintf("%s [%s]", d, rec.Title())), nil
}

// MonthFolder is "<output>/<service>/<YYYY-MM> attachments".
func MonthFolder(outputDir, service, month string) string {
	return filepath.Join(outputDir, record.SanitizeName(service), month+" attachments")
}

func hasPrefix(dir, prefix string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			return true, nil
		}
	}
	return false, nil
}

// fileRef returns the reference of the file attached to `rec`, a photo album costs one
// more request to resolve. ok is false when the record has nothing to download.
func (f Fetcher) fileRef(ctx context.Context, rec record.Record) (ref string, ok bool, err error) {
	if s, ok := rec.String("file_url"); ok && s != "" {
		return s, true, nil
	}
	album, ok := rec.Object("photo_album")
	if !ok {
		return "", false, nil
	}
	id, ok := record.Record{Fields: album}.String("id")
	if !ok {
		return "", false, nil
	}
	detail, err := f.source.PhotoAlbum(ctx, id)
	if err != nil {
		return "", false, err
	}
	if detail.FileURL == "" {
		return "", false, nil
	}
	return detail.FileURL, true, nil
}

// referencesFile reports whether `rec` carries a non-null file or photo album reference.
func referencesFile(rec record.Record) bool {
	if s, ok := rec.String("file_url"); ok && s != "" {
		return true
	}
	_, ok := rec.Object("photo_album")
	return ok
}

// Fetch downloads the attachment of one record into its month folder and writes the
// plain text rendering of the record beside it. It returns the path of the downloaded
// file, or "" when the record has no attachment or it was downloaded before.
func (f Fetcher) Fetch(ctx context.Context, service string, rec record.Record) (string, error) {
	if rec.Category != record.Timeline || !referencesFile(rec) {
		return "", nil
	}
	d, err := rec.DisplayDate()
	if err != nil {
		return "", err
	}
	prefix, err := Prefix(rec)
	if err != nil {
		return "", err
	}
	dir := MonthFolder(f.outputDir, service, d.MonthKey())

	exists, err := hasPrefix(dir, prefix)
	if err != nil {
		return "", err
	}
	if exists {
		f.tel.ReportDebug("already downloaded", prefix)
		f.tel.ReportCount(report_attachments_skip, 1)
		return "", nil
	}

	ref, ok, err := f.fileRef(ctx, rec)
	if err != nil {
		f.tel.ReportBroken(report_attachments_download, err, rec.ID)
		return "", err
	}
	if !ok {
		return "", nil
	}

	res, err := f.source.Download(ctx, ref)
	if err != nil {
		f.tel.ReportBroken(report_attachments_download, err, ref)
		return "", err
	}
	name, err := FilenameOf(res.Header.Get("content-disposition"))
	if err != nil {
		f.tel.ReportBroken(report_attachments_download, err, ref)
		return "", err
	}

	path := filepath.Join(dir, prefix+" "+record.SanitizeName(name))
	err = osutil.WriteFileAtomic(path, res.Body)
	if err != nil {
		return "", err
	}

	lines, err := f.renderer.SimpleContent(rec)
	if err != nil {
		return "", err
	}
	err = osutil.WriteFileAtomic(filepath.Join(dir, prefix+".txt"), []byte(strings.Join(lines, "\n")+"\n"))
	if err != nil {
		return "", err
	}
	f.tel.ReportCount(report_attachments_fetched, 1)
	return path, nil
}

// FetchAll downloads the attachments of every record, stopping at the first failure.
func (f Fetcher) FetchAll(ctx context.Context, service string, records []record.Record) ([]string, error) {
	var written []string
	for _, rec := range records {
		path, err := f.Fetch(ctx, service, rec)
		if err != nil {
			return written, fmt.Errorf("attachment of %s %s: %w", rec.Category, rec.ID, err)
		}
		if path != "" {
			written = append(written, path)
		}
	}
	return written, nil
}

type handoutAttachment struct {
	url      string
	fileName string
}

func handoutAttachments(rec record.Record) []handoutAttachment {
	list, _ := rec.List("attachments")
	var out []handoutAttachment
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		u, _ := obj["url"].(string)
		name, _ := obj["fileName"].(string)
		if u == "" {
			continue
		}
		out = append(out, handoutAttachment{url: u, fileName: name})
	}
	return out
}

// FetchHandout downloads every attachment of a handout to
// "<output>/handouts/<date> [<title>][<i>] <file name>", skipping names already present.
func (f Fetcher) FetchHandout(ctx context.Context, rec record.Record) ([]string, error) {
	d, err := rec.DisplayDate()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(f.outputDir, HandoutsDir)

	var written []string
	for i, att := range handoutAttachments(rec) {
		name, err := url.PathUnescape(att.fileName)
		if err != nil {
			name = att.fileName
		}
		filename := record.SanitizeName(fmt.Sprintf("%s [%s][%d] %s", d, rec.Title(), i, name))
		path := filepath.Join(dir, filename)

		_, err = os.Stat(path)
		if err == nil {
			f.tel.ReportDebug("already downloaded", filename)
			f.tel.ReportCount(report_attachments_skip, 1)
			continue
		}
		if !os.IsNotExist(err) {
			return written, err
		}

		res, err := f.source.Download(ctx, att.url)
		if err != nil {
			f.tel.ReportBroken(report_attachments_download, err, att.url)
			return written, err
		}
		err = osutil.WriteFileAtomic(path, res.Body)
		if err != nil {
			return written, err
		}
		f.tel.ReportCount(report_attachments_fetched, 1)
		written = append(written, path)
	}
	return written, nil
}
