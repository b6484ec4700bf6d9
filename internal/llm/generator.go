package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"pagesmith/internal/core"
)

const systemPrompt = `You are a professional full-stack web developer and UI/UX designer.
Your goal is to generate a complete, working, responsive web application
manifest in strict JSON format that can be directly deployed to GitHub Pages.

The JSON schema must be:
{
  "files": [
    {"path": "index.html", "content": "<!DOCTYPE html>...</html>", "encoding": "utf-8"},
    {"path": "style.css", "content": "..."},
    {"path": "script.js", "content": "..."}
  ]
}

Design and development guidelines:

1. Design philosophy
   - Use Bootstrap 5 for all layout and styling.
   - Create visually appealing, modern, accessible design.
   - Use .container, .row, .col, .card, and the responsive grid.
   - Include spacing, headings, and proper color contrast.
   - Use Bootstrap Icons or Font Awesome for icons.
   - Include a clear title, navbar (if relevant), and footer.
   - Mobile-first, responsive, and lightweight.

2. Attachment handling
   - Image (jpg/png/gif/svg): display inside a Bootstrap card or carousel.
   - CSV or Excel file: parse and render as an HTML <table> with id="csv-data".
   - JSON file: display parsed JSON in readable format.
   - PDF: use <embed src='filename.pdf'> (no base64) and add a #pdf-download button.
   - Video/Audio (mp4, webm, mp3, wav): use <video controls> or <audio controls>.
   - Always reference uploaded file names directly as src.
   - Provide download links and handle errors gracefully with Bootstrap alerts.

3. Checks handling
   - Each item in the checks list represents a JavaScript test.
   - Include all required elements and JS so checks pass.
   - Match element IDs and class names exactly (no renaming).
   - If .dark-theme or .light-theme appears in checks, include both containers and a #theme-toggle button.
   - Otherwise, omit theme containers unless explicitly required.

4. Behavior and logic
   - Use vanilla JavaScript (no frameworks) for interactivity.
   - Fetch or render attachments dynamically.
   - Include Bootstrap alerts for parsing errors.
   - Keep JS modular and well-commented.

5. Technical requirements
   - Load Bootstrap 5 via CDN.
   - Include the JS bundle at the bottom of <body>.
   - Link style.css properly.
   - Output valid JSON only (no markdown or explanations).`

const manifestPromptTemplate = `Persona:
You are a professional web developer building apps for automated evaluation.

Task:
Generate a deployable single-page web app that fulfills the brief and passes
all checks while visually presenting all attachments (images, tables, PDFs,
videos, etc.) in a professional Bootstrap 5 layout.

Context:
- Brief: %s
- Nonce: %s
- Round: %d
- Attachments:
%s

- Each check below is a JavaScript snippet executed in the browser.
  Ensure these elements or behaviors exist exactly as named:
%s

Format:
Return only valid JSON like:
{"files":[{"path":"index.html","content":"<html>...</html>"}]}

Output Requirements:
- No markdown formatting or explanations.
- Must be valid JSON parsable by a strict JSON decoder.`

// Generator produces a deployable manifest from a task brief.
type Generator interface {
	Generate(ctx context.Context, req core.GenerationRequest) (core.Manifest, error)
}

// ChatGenerator drives the chat model and repairs its output until it
// satisfies the manifest schema and the task checks.
type ChatGenerator struct {
	client *Client
	log    *zap.Logger
}

func NewChatGenerator(client *Client, log *zap.Logger) *ChatGenerator {
	return &ChatGenerator{client: client, log: log}
}

func (g *ChatGenerator) Generate(ctx context.Context, req core.GenerationRequest) (core.Manifest, error) {
	prompt := BuildPrompt(req)

	g.log.Info("requesting manifest from model", zap.Int("checks", len(req.Checks)))
	raw, err := g.client.ChatCompletion(ctx, systemPrompt, prompt)
	if err != nil {
		return core.Manifest{}, err
	}

	manifest, err := ParseManifest(raw)
	if err != nil {
		return core.Manifest{}, err
	}

	EnsureStylesheet(&manifest)
	InjectTableRows(&manifest, req.Checks, findCSVData(req.Attachments))
	EnsureThemeMarkup(&manifest, req.Checks)

	g.log.Info("manifest generated", zap.Int("files", len(manifest.Files)))
	return manifest, nil
}

// BuildPrompt assembles the manifest prompt: the brief enriched with
// selector guidance and theme instructions, the attachment summary, and
// the checks list.
func BuildPrompt(req core.GenerationRequest) string {
	brief := req.Brief

	selectors := ExtractSelectors(req.Checks)
	if guidance := selectors.Guidance(); guidance != "" {
		brief += "\n\nSelector Awareness Guidance:" + guidance
	}
	if len(selectors.CompoundHints) > 0 {
		var hints strings.Builder
		hints.WriteString("\n\nComplex Selector Hints:")
		for _, hint := range selectors.CompoundHints {
			hints.WriteString("\n- " + hint)
		}
		brief += hints.String()
	}
	if ThemeRequired(req.Checks) {
		brief += "\n\nIMPORTANT: This task REQUIRES both a .dark-theme and .light-theme section " +
			"and a visible #theme-toggle button. Include JS logic to switch themes. " +
			"Default view should be the light theme."
	}

	var checksText strings.Builder
	for _, check := range req.Checks {
		checksText.WriteString(" - " + check + "\n")
	}

	return fmt.Sprintf(manifestPromptTemplate,
		brief, req.Nonce, req.Round, SummarizeAttachments(req.Attachments), checksText.String())
}

// SummarizeAttachments describes attachments for the prompt by rough type.
func SummarizeAttachments(attachments []core.Attachment) string {
	if len(attachments) == 0 {
		return "No attachments."
	}

	var lines []string
	for _, att := range attachments {
		name := att.Name
		if name == "" {
			name = "unnamed"
		}
		lower := strings.ToLower(name)
		switch {
		case hasAnySuffix(lower, ".png", ".jpg", ".jpeg", ".gif", ".svg"):
			lines = append(lines, " - "+name+": image file (display in <img>)")
		case hasAnySuffix(lower, ".csv", ".xlsx"):
			lines = append(lines, " - "+name+": CSV/Excel data table (render in <table>)")
		case strings.Contains(lower, ".json"):
			lines = append(lines, " - "+name+": JSON data (visualize)")
		case strings.Contains(lower, ".pdf"):
			lines = append(lines, " - "+name+": PDF document (embed viewer, link download)")
		case hasAnySuffix(lower, ".mp4", ".webm", ".mp3", ".wav"):
			lines = append(lines, " - "+name+": media file (add player)")
		default:
			lines = append(lines, " - "+name+": generic file")
		}
	}
	return strings.Join(lines, "\n")
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

// findCSVData returns decoded bytes of the first CSV/TSV attachment
// delivered inline as a data: URI. Remote CSVs are merged later by the
// attachment stage; only inline data can seed table rows at generation
// time.
func findCSVData(attachments []core.Attachment) []byte {
	for _, att := range attachments {
		lower := strings.ToLower(att.Name)
		if !hasAnySuffix(lower, ".csv", ".tsv") {
			continue
		}
		data, _, err := DecodeDataURI(att.URL)
		if err == nil {
			return data
		}
	}
	return nil
}
