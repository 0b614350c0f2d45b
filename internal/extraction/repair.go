package extraction

import (
	"encoding/json"
	"sort"
)

// FillDefaults fills doc in place with type defaults taken from schema:
// missing properties, and required properties holding an empty object, get
// "" for strings, 0 for numbers, [] for arrays, {} for objects and false for
// booleans. It returns the dotted paths it filled, in walk order.
func FillDefaults(schema, doc map[string]any) []string {
	var filled []string
	fillObject(schema, doc, "", &filled)
	return filled
}

func fillObject(node, target map[string]any, prefix string, filled *[]string) {
	if schemaType(node) != "object" {
		return
	}
	props, _ := node["properties"].(map[string]any)

	for _, key := range requiredKeys(node) {
		v, ok := target[key]
		if ok && !isEmptyObject(v) {
			continue
		}
		propSchema, _ := props[key].(map[string]any)
		target[key] = defaultFor(propSchema)
		*filled = append(*filled, join(prefix, key))
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		propSchema, _ := props[key].(map[string]any)
		v, ok := target[key]
		if !ok {
			target[key] = defaultFor(propSchema)
			*filled = append(*filled, join(prefix, key))
			v = target[key]
		}
		if child, ok := v.(map[string]any); ok && propSchema != nil {
			fillObject(propSchema, child, join(prefix, key), filled)
		}
	}
}

func schemaType(node map[string]any) string {
	switch t := node["type"].(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func requiredKeys(node map[string]any) []string {
	list, _ := node["required"].([]any)
	out := make([]string, 0, len(list))
	for _, k := range list {
		if s, ok := k.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func defaultFor(prop map[string]any) any {
	t := "string"
	if prop != nil {
		if st := schemaType(prop); st != "" {
			t = st
		}
	}
	switch t {
	case "string":
		return ""
	case "number", "integer":
		return json.Number("0")
	case "array":
		return []any{}
	case "object":
		return map[string]any{}
	case "boolean":
		return false
	}
	return nil
}

func isEmptyObject(v any) bool {
	m, ok := v.(map[string]any)
	return ok && len(m) == 0
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
