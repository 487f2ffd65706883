package region

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MaxSchemaFields bounds the number of fields a caller may request.
const MaxSchemaFields = 50

// ErrInvalidSchema is wrapped by every schema definition failure.
var ErrInvalidSchema = errors.New("invalid schema")

// definitionSchema describes an acceptable schema definition document.
const definitionSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"minProperties": 1,
	"maxProperties": 50,
	"propertyNames": {
		"pattern": "^[^\\n\\r\\t]*\\S[^\\n\\r\\t]*$"
	},
	"additionalProperties": {"type": "string"}
}`

var (
	definitionOnce     sync.Once
	definitionCompiled *jsonschema.Schema
	definitionErr      error
)

func compiledDefinition() (*jsonschema.Schema, error) {
	definitionOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("definition.json", strings.NewReader(definitionSchema)); err != nil {
			definitionErr = fmt.Errorf("failed to load definition schema: %w", err)
			return
		}
		definitionCompiled, definitionErr = compiler.Compile("definition.json")
	})
	return definitionCompiled, definitionErr
}

// Field is one named entry of a Schema.
type Field struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Schema maps caller-defined field names to descriptions, keeping insertion order.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema builds a Schema from fields. A repeated name keeps its first
// position and takes the last description.
func NewSchema(fields ...Field) Schema {
	s := Schema{index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if i, ok := s.index[f.Name]; ok {
			s.fields[i].Description = f.Description
			continue
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s
}

// SchemaFromMap builds a Schema from a plain map, ordering keys lexically.
func SchemaFromMap(m map[string]string) Schema {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, Field{Name: k, Description: m[k]})
	}
	return NewSchema(fields...)
}

// Len returns the number of fields.
func (s Schema) Len() int { return len(s.fields) }

// Keys returns the field names in order.
func (s Schema) Keys() []string {
	keys := make([]string, len(s.fields))
	for i, f := range s.fields {
		keys[i] = f.Name
	}
	return keys
}

// Fields returns a copy of the ordered fields.
func (s Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Has reports whether name is a field of the schema.
func (s Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Description returns the description for name, or "" if absent.
func (s Schema) Description(name string) string {
	if i, ok := s.index[name]; ok {
		return s.fields[i].Description
	}
	return ""
}

// MarshalJSON encodes the schema as a JSON object in field order.
func (s Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Description)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes and validates a schema definition.
func (s *Schema) UnmarshalJSON(data []byte) error {
	parsed, err := ParseSchema(data)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSchema decodes a JSON object of field name to description, keeping
// key order. The definition must have between 1 and MaxSchemaFields fields,
// non-blank keys without newlines or tabs, string descriptions and no
// repeated keys.
func ParseSchema(data []byte) (Schema, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Schema{}, fmt.Errorf("%w: not valid JSON: %v", ErrInvalidSchema, err)
	}

	def, err := compiledDefinition()
	if err != nil {
		return Schema{}, err
	}
	if err := def.Validate(doc); err != nil {
		return Schema{}, fmt.Errorf("%w: %s", ErrInvalidSchema, describeViolation(err))
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return Schema{}, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	s := Schema{index: make(map[string]int)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Schema{}, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
		key, _ := tok.(string)
		var desc string
		if err := dec.Decode(&desc); err != nil {
			return Schema{}, fmt.Errorf("%w: field %q: %v", ErrInvalidSchema, key, err)
		}
		if _, dup := s.index[key]; dup {
			return Schema{}, fmt.Errorf("%w: duplicate field %q", ErrInvalidSchema, key)
		}
		s.index[key] = len(s.fields)
		s.fields = append(s.fields, Field{Name: key, Description: desc})
	}
	return s, nil
}

// describeViolation flattens a validation error into its most specific messages.
func describeViolation(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	var msgs []string
	var walk func(v *jsonschema.ValidationError)
	walk = func(v *jsonschema.ValidationError) {
		if len(v.Causes) == 0 {
			loc := v.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			msgs = append(msgs, loc+": "+v.Message)
			return
		}
		for _, c := range v.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(msgs, "; ")
}
