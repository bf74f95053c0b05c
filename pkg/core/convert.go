package core

// Helpers for reading provider-specific configuration out of the untyped
// Config map. Values arrive either from Go code (typed) or from JSON
// (numbers decoded as float64), so both shapes are accepted.

// getStringConfig reads a string value, falling back to def when the key is
// absent or not a string.
func getStringConfig(m map[string]interface{}, key, def string) string {
	if m == nil {
		return def
	}
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}

// getIntConfig reads an integer value, accepting JSON float64 decoding, and
// falls back to def when the key is absent or not numeric.
func getIntConfig(m map[string]interface{}, key string, def int) int {
	if m == nil {
		return def
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}
