// Package history records every backend attempt made during extraction and
// lets operators query and export them.
package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/ocrion/internal/prompts"
	prompt "github.com/jackzampolin/ocrion/internal/prompts/extract"
	"github.com/jackzampolin/ocrion/internal/region"
)

// Call is one recorded backend attempt.
type Call struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	LatencyMs int64     `json:"latency_ms"`

	RequestID string               `json:"request_id"`
	Attempt   int                  `json:"attempt"`
	Variant   region.PromptVariant `json:"variant"`

	// Prompt traceability
	PromptKey  string `json:"prompt_key"`
	PromptHash string `json:"prompt_hash"`

	Provider string `json:"provider"`
	Model    string `json:"model"`

	Outcome  region.Outcome `json:"outcome"`
	Response string         `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Success reports whether the backend reply parsed as a JSON object.
func (c *Call) Success() bool {
	return c.Outcome == region.OutcomeParsed
}

// RecordOptions carries the context an attempt does not know about itself.
type RecordOptions struct {
	Provider string
	Model    string
	// Now overrides the timestamp source (default: time.Now).
	Now func() time.Time
}

// FromAttempt creates a Call for an attempt of request requestID.
func FromAttempt(requestID string, a region.ExtractionAttempt, opts RecordOptions) *Call {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	return &Call{
		ID:         uuid.New().String(),
		Timestamp:  now().UTC(),
		LatencyMs:  a.Duration.Milliseconds(),
		RequestID:  requestID,
		Attempt:    a.Number,
		Variant:    a.Variant,
		PromptKey:  prompt.Variant(a.Variant == region.VariantStrict),
		PromptHash: prompts.HashText(a.Prompt),
		Provider:   opts.Provider,
		Model:      opts.Model,
		Outcome:    a.Outcome,
		Response:   a.Output,
		Error:      a.Error,
	}
}
