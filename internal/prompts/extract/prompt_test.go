package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/ocrion/internal/prompts"
	"github.com/jackzampolin/ocrion/internal/region"
)

func invoiceSchema() region.Schema {
	return region.NewSchema(
		region.Field{Name: "invoice_number", Description: "Unique invoice identifier"},
		region.Field{Name: "total", Description: "Final amount including tax"},
		region.Field{Name: "date", Description: "Invoice date"},
	)
}

func TestBuild_Normal(t *testing.T) {
	text := "Invoice #42\nTotal $100"
	p := Build(invoiceSchema(), text, false)

	assert.Contains(t, p, "1. invoice_number: Unique invoice identifier\n2. total: Final amount including tax\n3. date: Invoice date\n")
	assert.Contains(t, p, "<<<DOCUMENT TEXT\n"+text+"\nDOCUMENT TEXT>>>")
	assert.Contains(t, p, `exactly these keys: ["invoice_number","total","date"]`)
	assert.Contains(t, p, "use null")
	assert.NotContains(t, p, "EXTRACT DATA AS JSON ONLY")
	assert.NotContains(t, p, "No text was detected")
}

func TestBuild_Strict(t *testing.T) {
	p := Build(invoiceSchema(), "Total $100", true)

	assert.True(t, strings.HasPrefix(p, "EXTRACT DATA AS JSON ONLY."))
	assert.Contains(t, p, "No prose, no markdown code fences")
	assert.Contains(t, p, `exactly these keys: ["invoice_number","total","date"]`)
	assert.Contains(t, p, "<<<DOCUMENT TEXT\nTotal $100\nDOCUMENT TEXT>>>")
}

func TestBuild_EmptyText(t *testing.T) {
	for _, strict := range []bool{false, true} {
		for _, text := range []string{"", "  \n "} {
			p := Build(region.NewSchema(region.Field{Name: "a", Description: "desc"}), text, strict)
			assert.Contains(t, p, "No text was detected")
			assert.Contains(t, p, "1. a: desc")
			assert.Contains(t, p, `["a"]`)
		}
	}
}

func TestBuild_TextIsVerbatim(t *testing.T) {
	text := "  <b>&amp; {{.Text}}\ttabbed  "
	p := Build(region.NewSchema(region.Field{Name: "a", Description: "x < y"}), text, false)
	assert.Contains(t, p, "<<<DOCUMENT TEXT\n"+text+"\nDOCUMENT TEXT>>>")
	assert.Contains(t, p, "1. a: x < y")
}

func TestBuild_Deterministic(t *testing.T) {
	s := invoiceSchema()
	assert.Equal(t, Build(s, "abc", false), Build(s, "abc", false))
	assert.NotEqual(t, Build(s, "abc", false), Build(s, "abc", true))
}

func TestKeyList_NoHTMLEscaping(t *testing.T) {
	assert.Equal(t, `["a<b","c&d"]`, keyList([]string{"a<b", "c&d"}))
}

func TestSystemPrompt(t *testing.T) {
	assert.Equal(t, "You are a precise data extraction assistant. Always respond with valid JSON only.", SystemPrompt())
}

func TestFallbackPrompt(t *testing.T) {
	data := promptData{Fields: []region.Field{{Name: "a", Description: "d"}}, KeyList: `["a"]`}
	p := fallbackPrompt(data, true)
	assert.Contains(t, p, "EXTRACT DATA AS JSON ONLY")
	assert.Contains(t, p, "No text was detected")
	assert.Contains(t, p, `["a"]`)
}

func TestRegisterPrompts(t *testing.T) {
	c := prompts.NewCatalog()
	RegisterPrompts(c)

	all := c.All()
	require.Len(t, all, 3)

	user, ok := c.Get(UserPromptKey)
	require.True(t, ok)
	assert.Equal(t, []string{"Fields", "KeyList", "Text"}, user.Variables)
	assert.Equal(t, StrictPromptKey, Variant(true))
	assert.Equal(t, UserPromptKey, Variant(false))
}
