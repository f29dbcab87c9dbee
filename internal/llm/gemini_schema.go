package llm

import "google.golang.org/genai"

// normalizeSchemaForGemini strips JSON Schema keywords the Gemini API rejects
// and marks every property required, which Gemini expects. The input map is
// left untouched.
func normalizeSchemaForGemini(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	return normalizeGeminiSchema(copySchemaMap(schema))
}

var geminiUnsupportedKeywords = []string{
	"$schema",
	"format",
	"exclusiveMinimum",
	"exclusiveMaximum",
	"minimum",
	"maximum",
	"minLength",
	"maxLength",
	"minItems",
	"maxItems",
	"uniqueItems",
	"pattern",
	"default",
	"examples",
	"const",
	"additionalProperties",
	"title",
}

func normalizeGeminiSchema(schema map[string]any) map[string]any {
	for _, keyword := range geminiUnsupportedKeywords {
		delete(schema, keyword)
	}

	if props, ok := schema["properties"].(map[string]any); ok && len(props) > 0 {
		required := make([]string, 0, len(props))
		for name, val := range props {
			if prop, ok := val.(map[string]any); ok {
				props[name] = normalizeGeminiSchema(prop)
			}
			required = append(required, name)
		}
		schema["required"] = required
	}

	if items, ok := schema["items"].(map[string]any); ok {
		schema["items"] = normalizeGeminiSchema(items)
	}

	for _, key := range []string{"anyOf", "oneOf", "allOf"} {
		if variants, ok := schema[key].([]any); ok {
			for i, variant := range variants {
				if m, ok := variant.(map[string]any); ok {
					variants[i] = normalizeGeminiSchema(m)
				}
			}
		}
	}

	return schema
}

func copySchemaMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			out[k] = copySchemaMap(val)
		case []any:
			out[k] = copySchemaSlice(val)
		default:
			out[k] = v
		}
	}
	return out
}

func copySchemaSlice(s []any) []any {
	if s == nil {
		return nil
	}
	out := make([]any, len(s))
	for i, v := range s {
		switch val := v.(type) {
		case map[string]any:
			out[i] = copySchemaMap(val)
		case []any:
			out[i] = copySchemaSlice(val)
		default:
			out[i] = v
		}
	}
	return out
}

// schemaToGenai converts a JSON Schema map into the typed genai schema.
func schemaToGenai(schema map[string]any) *genai.Schema {
	if schema == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}

	out := &genai.Schema{
		Type:     genaiSchemaType(schema),
		Required: genaiRequired(schema),
	}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}

	if props, ok := schema["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, val := range props {
			if prop, ok := val.(map[string]any); ok {
				out.Properties[name] = schemaToGenai(prop)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		out.Items = schemaToGenai(items)
	}
	return out
}

func genaiSchemaType(schema map[string]any) genai.Type {
	t, _ := schema["type"].(string)
	switch t {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func genaiRequired(schema map[string]any) []string {
	switch required := schema["required"].(type) {
	case []string:
		return required
	case []any:
		out := make([]string, 0, len(required))
		for _, v := range required {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
