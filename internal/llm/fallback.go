package llm

import (
	"context"
	"fmt"
	"html"

	"pagesmith/internal/core"
)

// StaticGenerator produces a minimal page without calling any model. It is
// used when no API key is configured so the rest of the pipeline stays
// exercisable.
type StaticGenerator struct{}

func NewStaticGenerator() *StaticGenerator {
	return &StaticGenerator{}
}

func (g *StaticGenerator) Generate(ctx context.Context, req core.GenerationRequest) (core.Manifest, error) {
	if req.Brief == "" {
		return core.Manifest{}, fmt.Errorf("task brief required")
	}

	page := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Generated App</title>
<link href="https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/css/bootstrap.min.css" rel="stylesheet">
<link href="style.css" rel="stylesheet">
</head>
<body>
<main class="container">
<div class="card"><div class="card-body">
<h1>Generated App</h1>
<p>%s</p>
</div></div>
</main>
</body>
</html>
`, html.EscapeString(req.Brief))

	manifest := core.Manifest{
		Files: []core.FileEntry{
			{Path: "index.html", Content: page, Encoding: "utf-8"},
		},
	}
	EnsureStylesheet(&manifest)
	InjectTableRows(&manifest, req.Checks, findCSVData(req.Attachments))
	EnsureThemeMarkup(&manifest, req.Checks)
	return manifest, nil
}
