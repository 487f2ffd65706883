package extract

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackzampolin/ocrion/internal/region"
)

// Validate reconciles a parsed backend object with the schema. The result has
// exactly the schema's keys in schema order: missing keys become null, extra
// keys are dropped, and values that are not text, number or null are coerced
// to strings.
func Validate(schema region.Schema, parsed map[string]any) *region.ExtractionResult {
	res := &region.ExtractionResult{Data: region.NewRecord(schema.Len())}

	for _, key := range schema.Keys() {
		v, ok := parsed[key]
		if !ok {
			res.Data.Set(key, nil)
			res.NullFields = append(res.NullFields, key)
			continue
		}
		v = coerce(v)
		if v == nil {
			res.NullFields = append(res.NullFields, key)
		}
		res.Data.Set(key, v)
	}

	for key := range parsed {
		if !schema.Has(key) {
			res.Dropped = append(res.Dropped, key)
		}
	}
	sort.Strings(res.Dropped)

	return res
}

// coerce keeps strings, numbers and null and renders everything else as text.
func coerce(v any) any {
	switch t := v.(type) {
	case nil, string, json.Number,
		float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case []any, map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
