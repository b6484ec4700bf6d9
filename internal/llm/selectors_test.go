package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSelectors(t *testing.T) {
	checks := []string{
		`!!document.querySelector('#sales-table')`,
		`document.querySelectorAll('.card').length > 0`,
		`!!document.querySelector('#sales-table')`,
		`el.dataset.total !== undefined`,
		`document.querySelector("nav") !== null`,
	}

	selectors := ExtractSelectors(checks)

	assert.Equal(t, []string{"sales-table"}, selectors.IDs)
	assert.Contains(t, selectors.Classes, "card")
	assert.Contains(t, selectors.Tags, "nav")
	assert.Equal(t, []string{"total"}, selectors.DataAttrs)
}

func TestExtractSelectorsCompoundHints(t *testing.T) {
	checks := []string{
		`document.querySelectorAll('#sales-table tbody tr').length >= 3`,
	}

	selectors := ExtractSelectors(checks)

	assert.Len(t, selectors.CompoundHints, 1)
	assert.Contains(t, selectors.CompoundHints[0], "#sales-table")
	assert.Contains(t, selectors.CompoundHints[0], "<tbody>")
	assert.Contains(t, selectors.CompoundHints[0], "<tr>")
}

func TestGuidance(t *testing.T) {
	selectors := Selectors{
		IDs:     []string{"sales-table"},
		Classes: []string{"card"},
		Tags:    []string{"nav"},
	}

	guidance := selectors.Guidance()
	assert.Contains(t, guidance, "#sales-table")
	assert.Contains(t, guidance, ".card")
	assert.Contains(t, guidance, "<nav>")

	assert.Empty(t, Selectors{}.Guidance())
}

func TestThemeRequired(t *testing.T) {
	assert.True(t, ThemeRequired([]string{`!!document.querySelector('.dark-theme')`}))
	assert.True(t, ThemeRequired([]string{`!!document.querySelector('#theme-toggle')`}))
	assert.False(t, ThemeRequired([]string{`!!document.querySelector('#sales-table')`}))
	assert.False(t, ThemeRequired(nil))
}

func TestTableRowsRequired(t *testing.T) {
	assert.True(t, TableRowsRequired([]string{`document.querySelectorAll('#t tbody tr').length > 0`}))
	assert.False(t, TableRowsRequired([]string{`!!document.querySelector('#t')`}))
}

func TestTableIDs(t *testing.T) {
	checks := []string{
		`document.querySelectorAll('#data-table tbody tr').length >= 1`,
		`!!document.querySelector('#summary')`,
	}

	ids := TableIDs(checks)
	assert.Equal(t, []string{"data-table", "summary"}, ids)
}
