// Copyright 2026 The AppForge Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package recipe

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Field types understood by the schema interpreter. Schemas are data supplied
// by the catalog, not code, so validation happens at runtime.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeEnum    = "enum"
)

// Field describes one typed config field with optional default and bounds.
type Field struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Required bool     `json:"required,omitempty"`
	Default  any      `json:"default,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Values   []string `json:"values,omitempty"`
}

// Schema is a recipe's config schema: an ordered list of field descriptors.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FieldError reports a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks an untyped config payload against the schema. It returns
// the resolved config (defaults applied, numbers normalized to float64) or
// the full list of field-level errors. Unknown fields are rejected.
func (s Schema) Validate(input map[string]any) (map[string]any, []FieldError) {
	var errs []FieldError
	resolved := make(map[string]any, len(s.Fields))

	known := make(map[string]Field, len(s.Fields))
	for _, f := range s.Fields {
		known[f.Name] = f
	}

	for name := range input {
		if _, ok := known[name]; !ok {
			errs = append(errs, FieldError{Field: name, Message: "unknown field"})
		}
	}

	for _, f := range s.Fields {
		raw, present := input[f.Name]
		if !present || raw == nil {
			if f.Default != nil {
				resolved[f.Name] = normalizeDefault(f, f.Default)
				continue
			}
			if f.Required {
				errs = append(errs, FieldError{Field: f.Name, Message: "field is required"})
			}
			continue
		}

		value, err := coerce(f, raw)
		if err != nil {
			errs = append(errs, FieldError{Field: f.Name, Message: err.Error()})
			continue
		}
		resolved[f.Name] = value
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return resolved, nil
}

func coerce(f Field, raw any) (any, error) {
	switch f.Type {
	case TypeString:
		v, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return v, nil

	case TypeNumber:
		v, err := toFloat(raw)
		if err != nil {
			return nil, err
		}
		if f.Min != nil && v < *f.Min {
			return nil, fmt.Errorf("must be >= %v", *f.Min)
		}
		if f.Max != nil && v > *f.Max {
			return nil, fmt.Errorf("must be <= %v", *f.Max)
		}
		return v, nil

	case TypeBoolean:
		v, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", raw)
		}
		return v, nil

	case TypeEnum:
		v, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		for _, allowed := range f.Values {
			if v == allowed {
				return v, nil
			}
		}
		return nil, fmt.Errorf("must be one of: %s", strings.Join(f.Values, ", "))

	default:
		return nil, fmt.Errorf("schema declares unsupported type %q", f.Type)
	}
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", v.String())
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected number, got %T", raw)
	}
}

// Defaults pass through coerce too so a bad catalog default surfaces as the
// raw value rather than a typed one.
func normalizeDefault(f Field, def any) any {
	v, err := coerce(f, def)
	if err != nil {
		return def
	}
	return v
}
