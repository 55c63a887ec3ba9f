package logging

import "strings"

const redactedValue = "[REDACTED]"

var sensitiveMarkers = []string{
	"api_key", "apikey", "token", "secret", "password", "authorization", "credential",
}

// IsSensitiveField reports whether a field name looks like it carries a
// credential.
func IsSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Redact replaces sensitive values in a flat field map before it is logged.
// Nested maps are redacted recursively; other values pass through untouched.
func Redact(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if IsSensitiveField(k) {
			out[k] = redactedValue
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = Redact(nested)
			continue
		}
		out[k] = v
	}
	return out
}
