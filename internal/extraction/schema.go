package extraction

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/statement.schema.json
var statementSchema []byte

const schemaResource = "statement.schema.json"

// Schema is the statement JSON schema. Documents are validated against a
// permissive copy that tolerates properties the schema does not name.
type Schema struct {
	text       string
	raw        map[string]any
	permissive *jsonschema.Schema
}

// DefaultSchema returns the embedded statement schema.
func DefaultSchema() (*Schema, error) {
	return ParseSchema(statementSchema)
}

// ParseSchema parses and compiles a draft-07 schema.
func ParseSchema(data []byte) (*Schema, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	s := &Schema{text: string(bytes.TrimSpace(data)), raw: raw}

	b, err := json.Marshal(s.Permissive())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaResource, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	s.permissive = compiled
	return s, nil
}

// Text returns the schema as authored, for inclusion in prompts.
func (s *Schema) Text() string { return s.text }

// Raw returns a copy of the decoded schema.
func (s *Schema) Raw() map[string]any {
	return deepCopy(s.raw).(map[string]any)
}

// Permissive returns a copy of the schema with additionalProperties set to
// true on every node reachable through properties and items.
func (s *Schema) Permissive() map[string]any {
	cp := s.Raw()
	allowAdditional(cp)
	return cp
}

func allowAdditional(node any) {
	switch n := node.(type) {
	case map[string]any:
		n["additionalProperties"] = true
		if props, ok := n["properties"].(map[string]any); ok {
			for _, p := range props {
				allowAdditional(p)
			}
		}
		if items, ok := n["items"]; ok {
			allowAdditional(items)
		}
	case []any:
		for _, e := range n {
			allowAdditional(e)
		}
	}
}

// Validate checks doc against the permissive schema. doc must be built from
// maps, slices and JSON scalars.
func (s *Schema) Validate(doc any) error {
	return s.permissive.Validate(doc)
}

func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}
