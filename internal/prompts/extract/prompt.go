// Package extract renders the field extraction prompts sent to the backend.
package extract

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/jackzampolin/ocrion/internal/prompts"
	"github.com/jackzampolin/ocrion/internal/region"
)

//go:embed system.tmpl
var systemPrompt string

//go:embed user.tmpl
var userPromptTmpl string

//go:embed strict.tmpl
var strictPromptTmpl string

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

var (
	userTemplate   = template.Must(template.New("user").Funcs(funcs).Parse(userPromptTmpl))
	strictTemplate = template.Must(template.New("strict").Funcs(funcs).Parse(strictPromptTmpl))
)

// Prompt keys
const (
	SystemPromptKey = "extract.system"
	UserPromptKey   = "extract.user"
	StrictPromptKey = "extract.user.strict"
)

type promptData struct {
	Fields  []region.Field
	Text    string
	KeyList string
}

// SystemPrompt returns the system message sent with every extraction request.
func SystemPrompt() string {
	return strings.TrimSpace(systemPrompt)
}

// Build renders the extraction prompt for schema over orderedText. The strict
// variant is used for the retry after an unparseable reply. Empty text still
// yields a usable prompt that tells the backend nothing was detected.
func Build(schema region.Schema, orderedText string, strict bool) string {
	data := promptData{
		Fields:  schema.Fields(),
		KeyList: keyList(schema.Keys()),
	}
	if strings.TrimSpace(orderedText) != "" {
		data.Text = orderedText
	}

	tmpl := userTemplate
	if strict {
		tmpl = strictTemplate
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fallbackPrompt(data, strict)
	}
	return buf.String()
}

// Variant returns the template key used for a variant.
func Variant(strict bool) string {
	if strict {
		return StrictPromptKey
	}
	return UserPromptKey
}

// keyList renders keys as a JSON array without HTML escaping.
func keyList(keys []string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(keys); err != nil {
		return "[" + strings.Join(keys, ", ") + "]"
	}
	return strings.TrimSpace(buf.String())
}

func fallbackPrompt(data promptData, strict bool) string {
	var b strings.Builder
	if strict {
		b.WriteString("EXTRACT DATA AS JSON ONLY. No prose, no markdown code fences.\n\n")
	}
	b.WriteString("FIELDS:\n")
	for i, f := range data.Fields {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, f.Name, f.Description)
	}
	b.WriteString("\n<<<DOCUMENT TEXT\n")
	if data.Text == "" {
		b.WriteString("[No text was detected in this document. Use null for every field.]")
	} else {
		b.WriteString(data.Text)
	}
	b.WriteString("\nDOCUMENT TEXT>>>\n\n")
	fmt.Fprintf(&b, "Return a single JSON object with exactly these keys, using null for missing fields: %s\n", data.KeyList)
	return b.String()
}

// RegisterPrompts registers the extraction prompts with the catalog.
func RegisterPrompts(c *prompts.Catalog) {
	c.Register(prompts.EmbeddedPrompt{
		Key:         SystemPromptKey,
		Text:        systemPrompt,
		Description: "System message for field extraction",
	})
	c.Register(prompts.EmbeddedPrompt{
		Key:         UserPromptKey,
		Text:        userPromptTmpl,
		Description: "First-attempt extraction prompt",
	})
	c.Register(prompts.EmbeddedPrompt{
		Key:         StrictPromptKey,
		Text:        strictPromptTmpl,
		Description: "Retry prompt demanding bare JSON after an unparseable reply",
	})
}
