package notebook

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"carebook/internal/components/osutil"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	IndexName = "index" + DocExt

	listingDirective = ".. toctree::"
	listingIndent    = "   "
)

const indexTemplate = `carebook
========

.. toctree::
   :maxdepth: 1

`

// MonthDocs lists every month document under the output root as toctree entries,
// "<service>/<YYYY-MM>" without the extension.
func MonthDocs(outputDir string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(outputDir), "*/*"+DocExt)
	if err != nil {
		return nil, err
	}
	var entries []string
	for _, m := range matches {
		entries = append(entries, strings.TrimSuffix(filepath.ToSlash(m), DocExt))
	}
	sort.Strings(entries)
	return entries, nil
}

// ReplaceListing swaps the managed region of an index document for `entries`.
//
// The managed region starts after the first blank line following the listing directive
// (its options come before that line) and ends at the next blank line, everything
// outside of it is kept byte for byte. A document without the directive gets one appended.
func ReplaceListing(doc string, entries []string) string {
	listing := make([]string, len(entries))
	for i, e := range entries {
		listing[i] = listingIndent + e
	}

	lines := strings.Split(doc, "\n")
	directive := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == listingDirective {
			directive = i
			break
		}
	}
	if directive < 0 {
		out := strings.TrimRight(doc, "\n")
		if out != "" {
			out += "\n\n"
		}
		out += listingDirective + "\n" + listingIndent + ":maxdepth: 1\n\n"
		if len(listing) > 0 {
			out += strings.Join(listing, "\n") + "\n"
		}
		return out
	}

	start := -1
	for i := directive + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			start = i
			break
		}
	}
	if start < 0 {
		out := append(append([]string{}, lines...), "")
		out = append(out, listing...)
		return strings.Join(append(out, ""), "\n")
	}

	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			end = i
			break
		}
	}

	out := append([]string{}, lines[:start+1]...)
	out = append(out, listing...)
	if end == len(lines) {
		out = append(out, "")
	} else {
		out = append(out, lines[end:]...)
	}
	return strings.Join(out, "\n")
}

// RebuildIndex regenerates the listing of <outputDir>/index.rst, creating the index
// from a template when it does not exist yet.
func RebuildIndex(outputDir string) error {
	entries, err := MonthDocs(outputDir)
	if err != nil {
		return err
	}

	path := filepath.Join(outputDir, IndexName)
	contents, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		contents = []byte(indexTemplate)
	} else if err != nil {
		return err
	}

	updated := ReplaceListing(string(contents), entries)
	if updated == string(contents) {
		return nil
	}
	return osutil.WriteFileAtomic(path, []byte(updated))
}
