package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// EnforceNoAdditionalProperties recursively sets
// "additionalProperties": false on every object schema, which structured
// outputs require. Union branches (anyOf/oneOf/allOf), array items and
// $defs/definitions are all visited. The input map is modified in place and
// returned for chaining.
func EnforceNoAdditionalProperties(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}

	for _, key := range []string{"anyOf", "oneOf", "allOf"} {
		if branches, ok := schema[key].([]any); ok {
			for i, branch := range branches {
				if m, ok := branch.(map[string]any); ok {
					branches[i] = EnforceNoAdditionalProperties(m)
				}
			}
		}
	}

	switch schema["type"] {
	case "object":
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]any); ok {
			for name, prop := range props {
				if m, ok := prop.(map[string]any); ok {
					props[name] = EnforceNoAdditionalProperties(m)
				}
			}
		}
		for _, key := range []string{"$defs", "definitions"} {
			if defs, ok := schema[key].(map[string]any); ok {
				for name, def := range defs {
					if m, ok := def.(map[string]any); ok {
						defs[name] = EnforceNoAdditionalProperties(m)
					}
				}
			}
		}
	case "array":
		if items, ok := schema["items"].(map[string]any); ok {
			schema["items"] = EnforceNoAdditionalProperties(items)
		}
	}

	return schema
}

// cacheKey derives a stable key from everything that affects the response.
// Map marshalling in Go sorts keys, so the schema serialisation is
// deterministic.
func cacheKey(model string, req SchemaRequest) string {
	schemaJSON, _ := json.Marshal(req.Schema)
	content := strings.Join([]string{
		req.System,
		req.User,
		string(schemaJSON),
		req.SchemaName,
		model,
	}, "|")
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// cleanResponseText strips the markdown code fences some models wrap around
// JSON output despite the schema instruction.
func cleanResponseText(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return strings.TrimSpace(text)
}
