package region

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// PromptVariant names the prompt used for an attempt.
type PromptVariant string

const (
	VariantNormal PromptVariant = "normal"
	VariantStrict PromptVariant = "strict"
)

// Outcome classifies what happened to one backend attempt.
type Outcome string

const (
	OutcomeParsed      Outcome = "parsed"
	OutcomeUnparseable Outcome = "unparseable"
	OutcomeNotObject   Outcome = "not_object"
	OutcomeTransport   Outcome = "transport_error"
	OutcomeCanceled    Outcome = "canceled"
)

// ExtractionAttempt records one call to the backend.
type ExtractionAttempt struct {
	Number   int           `json:"number"`
	Variant  PromptVariant `json:"variant"`
	Prompt   string        `json:"-"`
	Output   string        `json:"output,omitempty"`
	Outcome  Outcome       `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// StageTiming is the wall time spent in one named stage.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
}

// Record is a string-keyed mapping that remembers insertion order.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord returns an empty Record sized for n keys.
func NewRecord(n int) Record {
	return Record{keys: make([]string, 0, n), values: make(map[string]any, n)}
}

// Set stores v under k, appending k if new.
func (r *Record) Set(k string, v any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[k]; !ok {
		r.keys = append(r.keys, k)
	}
	r.values[k] = v
}

// Get returns the value for k.
func (r Record) Get(k string) (any, bool) {
	v, ok := r.values[k]
	return v, ok
}

// Keys returns the keys in insertion order.
func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of keys.
func (r Record) Len() int { return len(r.keys) }

// Map returns a plain map copy.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the record as an object in insertion order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML encodes the record as a mapping in insertion order.
func (r Record) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range r.keys {
		var key, val yaml.Node
		key.SetString(k)
		if err := val.Encode(r.values[k]); err != nil {
			return nil, err
		}
		n.Content = append(n.Content, &key, &val)
	}
	return n, nil
}

// UnmarshalJSON decodes an object, keeping its key order. Numbers decode
// as json.Number.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("record: expected JSON object, got %v", tok)
	}

	out := NewRecord(0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("record: unexpected key %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}

// ExtractionResult is a schema-shaped mapping of extracted values plus provenance.
type ExtractionResult struct {
	Data           Record              `json:"data"`
	Attempts       int                 `json:"attempts"`
	History        []ExtractionAttempt `json:"history,omitempty"`
	LayoutFallback bool                `json:"layout_fallback"`
	NullFields     []string            `json:"null_fields,omitempty"`
	Dropped        []string            `json:"dropped_fields,omitempty"`
	Timings        []StageTiming       `json:"timings,omitempty"`
}

// HasNulls reports whether any field fell back to null.
func (r *ExtractionResult) HasNulls() bool {
	return len(r.NullFields) > 0
}

// Timing returns the recorded duration for stage.
func (r *ExtractionResult) Timing(stage string) (time.Duration, bool) {
	for _, t := range r.Timings {
		if t.Stage == stage {
			return t.Duration, true
		}
	}
	return 0, false
}
