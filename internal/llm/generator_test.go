package llm

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"

	"pagesmith/internal/core"
)

func TestBuildPrompt(t *testing.T) {
	req := core.GenerationRequest{
		Brief:  "Build a sales dashboard",
		Checks: []string{`!!document.querySelector('#sales-table')`},
		Nonce:  "abc123",
		Round:  2,
	}

	prompt := BuildPrompt(req)

	assert.Contains(t, prompt, "Build a sales dashboard")
	assert.Contains(t, prompt, "abc123")
	assert.Contains(t, prompt, "Round: 2")
	assert.Contains(t, prompt, "Selector Awareness Guidance:")
	assert.Contains(t, prompt, "#sales-table")
	assert.Contains(t, prompt, "No attachments.")
	assert.NotContains(t, prompt, "IMPORTANT: This task REQUIRES")
}

func TestBuildPromptThemeAndCompound(t *testing.T) {
	req := core.GenerationRequest{
		Brief: "Build a themed report",
		Checks: []string{
			`!!document.querySelector('.dark-theme')`,
			`document.querySelectorAll('#report tbody tr').length >= 1`,
		},
		Nonce: "n",
		Round: 1,
	}

	prompt := BuildPrompt(req)

	assert.Contains(t, prompt, "IMPORTANT: This task REQUIRES")
	assert.Contains(t, prompt, "Complex Selector Hints:")
	assert.Contains(t, prompt, "For #report")
}

func TestSummarizeAttachments(t *testing.T) {
	attachments := []core.Attachment{
		{Name: "chart.png", URL: "https://example.com/chart.png"},
		{Name: "sales.csv", URL: "https://example.com/sales.csv"},
		{Name: "report.pdf", URL: "https://example.com/report.pdf"},
		{Name: "notes.xyz", URL: "https://example.com/notes.xyz"},
	}

	summary := SummarizeAttachments(attachments)

	assert.Contains(t, summary, "chart.png: image file")
	assert.Contains(t, summary, "sales.csv: CSV/Excel data table")
	assert.Contains(t, summary, "report.pdf: PDF document")
	assert.Contains(t, summary, "notes.xyz: generic file")

	assert.Equal(t, "No attachments.", SummarizeAttachments(nil))
}

func TestFindCSVData(t *testing.T) {
	csv := "name,total\nwidgets,10\n"
	attachments := []core.Attachment{
		{Name: "chart.png", URL: "https://example.com/chart.png"},
		{Name: "sales.csv", URL: "data:text/csv;base64," + base64.StdEncoding.EncodeToString([]byte(csv))},
	}

	assert.Equal(t, []byte(csv), findCSVData(attachments))

	// Remote CSVs are fetched later, not at prompt time.
	assert.Nil(t, findCSVData([]core.Attachment{{Name: "sales.csv", URL: "https://example.com/sales.csv"}}))
}
