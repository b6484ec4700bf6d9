package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagesmith/internal/core"
)

func TestExtractManifestJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bare object",
			in:   `{"files":[{"path":"index.html","content":"x"}]}`,
			want: `{"files":[{"path":"index.html","content":"x"}]}`,
		},
		{
			name: "fenced",
			in:   "```json\n{\"files\":[]}\n```",
			want: `{"files":[]}`,
		},
		{
			name: "surrounded by prose",
			in:   `Here is your app: {"files":[{"path":"a","content":"b"}]} hope it helps`,
			want: `{"files":[{"path":"a","content":"b"}]}`,
		},
		{
			name: "trailing comma",
			in:   `{"files":[{"path":"a","content":"b"},],}`,
			want: `{"files":[{"path":"a","content":"b"}]}`,
		},
		{
			name: "no json",
			in:   "sorry, I cannot do that",
			want: "",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractManifestJSON(tt.in))
		})
	}
}

func TestParseManifest(t *testing.T) {
	raw := "```json\n{\"files\":[{\"path\":\"index.html\",\"content\":\"<html></html>\"}]}\n```"

	manifest, err := ParseManifest(raw)
	require.NoError(t, err)
	require.Len(t, manifest.Files, 1)
	assert.Equal(t, "index.html", manifest.Files[0].Path)
}

func TestParseManifestBareHTMLFallback(t *testing.T) {
	raw := "```html\n<!DOCTYPE html>\n<html><body><h1>App</h1></body></html>\n```"

	manifest, err := ParseManifest(raw)
	require.NoError(t, err)

	index, ok := manifest.Lookup("index.html")
	require.True(t, ok)
	assert.Contains(t, index.Content, "<h1>App</h1>")
}

func TestParseManifestErrors(t *testing.T) {
	_, err := ParseManifest("no json here")
	assert.Error(t, err)

	_, err = ParseManifest(`{"files":[]}`)
	assert.Error(t, err)

	_, err = ParseManifest(`{"files":[{"path":"","content":"x"}]}`)
	assert.Error(t, err)

	_, err = ParseManifest(`{"files":[{"path":"a","content":""}]}`)
	assert.Error(t, err)
}

func TestEnsureStylesheet(t *testing.T) {
	manifest := core.Manifest{Files: []core.FileEntry{{Path: "index.html", Content: "<html></html>"}}}

	EnsureStylesheet(&manifest)
	entry, ok := manifest.Lookup("style.css")
	require.True(t, ok)
	assert.NotEmpty(t, entry.Content)

	// Existing stylesheet is left alone.
	manifest.Upsert(core.FileEntry{Path: "style.css", Content: "body{}"})
	EnsureStylesheet(&manifest)
	entry, _ = manifest.Lookup("style.css")
	assert.Equal(t, "body{}", entry.Content)
}

func TestCSVToTableRows(t *testing.T) {
	thead, rows := CSVToTableRows([]byte("name,total\nwidgets,10\ngadgets,20\n"))

	assert.Contains(t, thead, `<th scope="col">name</th>`)
	assert.Contains(t, thead, `<th scope="col">total</th>`)
	assert.Equal(t, 2, strings.Count(rows, "<tr>"))
	assert.Contains(t, rows, "<td>widgets</td>")

	thead, rows = CSVToTableRows(nil)
	assert.Empty(t, thead)
	assert.Empty(t, rows)
}

func TestCSVToTableRowsCapped(t *testing.T) {
	var b strings.Builder
	b.WriteString("col\n")
	for i := 0; i < 100; i++ {
		b.WriteString("v\n")
	}

	_, rows := CSVToTableRows([]byte(b.String()))
	assert.Equal(t, maxCSVRows, strings.Count(rows, "<tr>"))
}

func TestInjectTableRowsPopulatesExistingTable(t *testing.T) {
	manifest := core.Manifest{Files: []core.FileEntry{{
		Path:    "index.html",
		Content: `<body><table id="data-table"><tbody></tbody></table></body>`,
	}}}
	checks := []string{`document.querySelectorAll('#data-table tbody tr').length >= 2`}

	InjectTableRows(&manifest, checks, []byte("name,total\nwidgets,10\ngadgets,20\n"))

	index, _ := manifest.Lookup("index.html")
	assert.Contains(t, index.Content, "<td>widgets</td>")
	assert.Contains(t, index.Content, "<td>gadgets</td>")
	assert.Contains(t, index.Content, "<thead>")
}

func TestInjectTableRowsAddsMissingTable(t *testing.T) {
	manifest := core.Manifest{Files: []core.FileEntry{{
		Path:    "index.html",
		Content: `<body><main><h1>App</h1></main></body>`,
	}}}
	checks := []string{`document.querySelectorAll('#data-table tbody tr').length >= 1`}

	InjectTableRows(&manifest, checks, nil)

	index, _ := manifest.Lookup("index.html")
	assert.Contains(t, index.Content, `id="data-table"`)
	// Without CSV data a sample row still satisfies row-count checks.
	assert.Contains(t, index.Content, "<tr><td>Sample</td>")
}

func TestInjectTableRowsNoopWithoutRowChecks(t *testing.T) {
	original := `<body><h1>App</h1></body>`
	manifest := core.Manifest{Files: []core.FileEntry{{Path: "index.html", Content: original}}}

	InjectTableRows(&manifest, []string{`!!document.querySelector('#data-table')`}, nil)

	index, _ := manifest.Lookup("index.html")
	assert.Equal(t, original, index.Content)
}

func TestEnsureThemeMarkup(t *testing.T) {
	manifest := core.Manifest{Files: []core.FileEntry{{
		Path:    "index.html",
		Content: `<body><main><h1>App</h1></main></body>`,
	}}}
	checks := []string{`!!document.querySelector('.dark-theme')`}

	EnsureThemeMarkup(&manifest, checks)

	index, _ := manifest.Lookup("index.html")
	assert.Contains(t, index.Content, "dark-theme")
	assert.Contains(t, index.Content, "light-theme")
	assert.Contains(t, index.Content, `id="theme-toggle"`)
}

func TestEnsureThemeMarkupNoopWhenPresent(t *testing.T) {
	content := `<body><div class="light-theme"></div><div class="dark-theme"></div><button id="theme-toggle"></button></body>`
	manifest := core.Manifest{Files: []core.FileEntry{{Path: "index.html", Content: content}}}

	EnsureThemeMarkup(&manifest, []string{`!!document.querySelector('#theme-toggle')`})

	index, _ := manifest.Lookup("index.html")
	assert.Equal(t, content, index.Content)
}
