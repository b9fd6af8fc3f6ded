package notebook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
}

func TestReplaceListing(t *testing.T) {
	testCases := []struct {
		name     string
		doc      string
		entries  []string
		expected string
	}{
		{
			name:     "template",
			doc:      indexTemplate,
			entries:  []string{"a/2023-11"},
			expected: "carebook\n========\n\n.. toctree::\n   :maxdepth: 1\n\n   a/2023-11\n",
		},
		{
			name:     "replaces previous entries",
			doc:      "carebook\n========\n\n.. toctree::\n   :maxdepth: 1\n\n   a/2023-10\n",
			entries:  []string{"a/2023-10", "a/2023-11"},
			expected: "carebook\n========\n\n.. toctree::\n   :maxdepth: 1\n\n   a/2023-10\n   a/2023-11\n",
		},
		{
			name:     "keeps text around the listing",
			doc:      "My notes\n========\n\nintro\n\n.. toctree::\n   :caption: 記録\n\n   old/2020-01\n\nfooter\n",
			entries:  []string{"a/2023-11"},
			expected: "My notes\n========\n\nintro\n\n.. toctree::\n   :caption: 記録\n\n   a/2023-11\n\nfooter\n",
		},
		{
			name:     "appends a missing directive",
			doc:      "My notes\n========\n",
			entries:  []string{"a/2023-11"},
			expected: "My notes\n========\n\n.. toctree::\n   :maxdepth: 1\n\n   a/2023-11\n",
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, ReplaceListing(test.doc, test.entries))
		})
	}
}

func TestRebuildIndex(t *testing.T) {
	out := t.TempDir()
	writeFile(t, filepath.Join(out, "ひまわり", "2023-11.rst"), "x\n")
	writeFile(t, filepath.Join(out, "ひまわり", "2023-10.rst"), "x\n")
	writeFile(t, filepath.Join(out, "あおぞら", "2024-01.rst"), "x\n")
	writeFile(t, filepath.Join(out, "ひまわり", "vitals.csv"), "date\n")

	docs, err := MonthDocs(out)
	require.NoError(t, err)
	require.Equal(t, []string{"あおぞら/2024-01", "ひまわり/2023-10", "ひまわり/2023-11"}, docs)

	err = RebuildIndex(out)
	require.NoError(t, err)
	contents, err := os.ReadFile(filepath.Join(out, IndexName))
	require.NoError(t, err)
	require.Equal(t, "carebook\n========\n\n.. toctree::\n   :maxdepth: 1\n\n   あおぞら/2024-01\n   ひまわり/2023-10\n   ひまわり/2023-11\n", string(contents))

	// hand written parts survive a rebuild
	custom := "Family\n======\n\n.. toctree::\n\n   stale\n\nSee also the photos.\n"
	writeFile(t, filepath.Join(out, IndexName), custom)
	err = RebuildIndex(out)
	require.NoError(t, err)
	contents, err = os.ReadFile(filepath.Join(out, IndexName))
	require.NoError(t, err)
	require.Equal(t, "Family\n======\n\n.. toctree::\n\n   あおぞら/2024-01\n   ひまわり/2023-10\n   ひまわり/2023-11\n\nSee also the photos.\n", string(contents))
}
