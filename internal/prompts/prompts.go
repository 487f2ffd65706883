// Package prompts keeps the catalog of embedded prompt templates.
//
// Templates live as .tmpl files next to the code that renders them and are
// the only source of prompt text. Each package registers its templates here
// so that the server can list them and so that recorded backend calls can be
// traced to the exact template version through its hash.
package prompts

import (
	"sort"
	"sync"
)

// EmbeddedPrompt represents a prompt loaded from an embedded .tmpl file.
type EmbeddedPrompt struct {
	Key         string   `json:"key"`                   // Hierarchical key: extract.user.strict
	Text        string   `json:"text"`                  // The prompt text (Go template)
	Description string   `json:"description,omitempty"` // Human-readable description
	Variables   []string `json:"variables,omitempty"`   // Extracted template variables
	Hash        string   `json:"hash"`                  // SHA256 hash of the text for change detection
}

// Catalog holds registered embedded prompts.
type Catalog struct {
	mu       sync.RWMutex
	embedded map[string]EmbeddedPrompt
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{embedded: make(map[string]EmbeddedPrompt)}
}

// Register adds or replaces an embedded prompt, filling in its hash and variables.
func (c *Catalog) Register(p EmbeddedPrompt) {
	if p.Hash == "" {
		p.Hash = HashText(p.Text)
	}
	if p.Variables == nil {
		p.Variables = ExtractVariables(p.Text)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.embedded[p.Key] = p
}

// Get returns the prompt registered under key.
func (c *Catalog) Get(key string) (EmbeddedPrompt, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.embedded[key]
	return p, ok
}

// All returns every registered prompt sorted by key.
func (c *Catalog) All() []EmbeddedPrompt {
	c.mu.RLock()
	out := make([]EmbeddedPrompt, 0, len(c.embedded))
	for _, p := range c.embedded {
		out = append(out, p)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
