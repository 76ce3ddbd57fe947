package tools

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/mitchellh/mapstructure"
)

// Schema builders for the capability descriptors.

func objectSchema(required []string, props map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

func stringProp(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc}
}

func requiredString(desc string) *jsonschema.Schema {
	one := 1
	return &jsonschema.Schema{Type: "string", Description: desc, MinLength: &one}
}

func stringDefault(desc, def string) *jsonschema.Schema {
	s := stringProp(desc)
	s.Default = mustRaw(def)
	return s
}

func enumProp(desc, def string, values ...string) *jsonschema.Schema {
	s := stringDefault(desc, def)
	for _, v := range values {
		s.Enum = append(s.Enum, v)
	}
	return s
}

func intRange(desc string, minimum, maximum float64, def *int) *jsonschema.Schema {
	s := &jsonschema.Schema{Type: "integer", Description: desc, Minimum: &minimum}
	if maximum > 0 {
		s.Maximum = &maximum
	}
	if def != nil {
		s.Default = mustRaw(*def)
	}
	return s
}

func numberRange(desc string, minimum, maximum, def float64) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "number", Description: desc, Minimum: &minimum, Maximum: &maximum, Default: mustRaw(def)}
}

func stringList(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Description: desc, Items: &jsonschema.Schema{Type: "string"}}
}

func arrayOf(item *jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Items: item}
}

func typed(t string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: t}
}

func nullable(t string) *jsonschema.Schema {
	return &jsonschema.Schema{Types: []string{t, "null"}}
}

func intPtr(v int) *int { return &v }

func mustRaw(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("schema default %v: %v", v, err))
	}
	return data
}

// normalizeInput converts arbitrary Go values into their JSON-decoded form so the
// validator sees float64 numbers and plain maps regardless of the caller.
// Top-level null values mean the property is absent.
func normalizeInput(input map[string]any) (map[string]any, error) {
	out := map[string]any{}
	if input == nil {
		return out, nil
	}
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("input is not JSON-encodable: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("input is not a JSON object: %w", err)
	}
	for name, v := range out {
		if v == nil {
			delete(out, name)
		}
	}
	return out, nil
}

// applyDefaults fills absent top-level properties from their schema defaults.
func applyDefaults(schema *jsonschema.Schema, input map[string]any) error {
	for name, prop := range schema.Properties {
		if _, ok := input[name]; ok || len(prop.Default) == 0 {
			continue
		}
		var v any
		if err := json.Unmarshal(prop.Default, &v); err != nil {
			return fmt.Errorf("default for %s: %w", name, err)
		}
		input[name] = v
	}
	return nil
}

// prepareInput normalizes, defaults and validates input against a resolved schema.
func prepareInput(schema *jsonschema.Schema, resolved *jsonschema.Resolved, input map[string]any) (map[string]any, error) {
	normalized, err := normalizeInput(input)
	if err != nil {
		return nil, err
	}
	if err := applyDefaults(schema, normalized); err != nil {
		return nil, err
	}
	if err := resolved.Validate(normalized); err != nil {
		return nil, err //nolint:wrapcheck // validator message is the user-facing detail
	}
	return normalized, nil
}

// decodeInput decodes validated input into a typed struct using its json tags.
func decodeInput(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	return nil
}
