package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagesmith/internal/core"
)

func TestStaticGenerator(t *testing.T) {
	gen := NewStaticGenerator()

	manifest, err := gen.Generate(context.Background(), core.GenerationRequest{
		Brief: "Show <b>sales</b> data",
	})
	require.NoError(t, err)

	index, ok := manifest.Lookup("index.html")
	require.True(t, ok)
	assert.Contains(t, index.Content, "&lt;b&gt;sales&lt;/b&gt;")

	_, ok = manifest.Lookup("style.css")
	assert.True(t, ok)
}

func TestStaticGeneratorRequiresBrief(t *testing.T) {
	gen := NewStaticGenerator()

	_, err := gen.Generate(context.Background(), core.GenerationRequest{})
	assert.Error(t, err)
}

func TestStaticGeneratorAppliesChecks(t *testing.T) {
	gen := NewStaticGenerator()

	manifest, err := gen.Generate(context.Background(), core.GenerationRequest{
		Brief: "Themed table app",
		Checks: []string{
			`!!document.querySelector('.dark-theme')`,
			`document.querySelectorAll('#data-table tbody tr').length >= 1`,
		},
	})
	require.NoError(t, err)

	index, _ := manifest.Lookup("index.html")
	assert.Contains(t, index.Content, `id="data-table"`)
	assert.Contains(t, index.Content, `id="theme-toggle"`)
}
