package ruleengine

import (
	"encoding/json"
	"strconv"
)

// NormalizeAttributes turns decoded JSON attribute values into the strings
// the evaluator compares. Numbers use their shortest decimal form ("3", "2.5")
// and booleans become "true"/"false". Nested arrays and objects keep their
// compact JSON encoding. Null values are dropped, and an empty result is nil.
func NormalizeAttributes(raw map[string]any) map[string]string {
	if len(raw) == 0 {
		return nil
	}

	out := make(map[string]string, len(raw))
	for key, value := range raw {
		if s, ok := attributeString(value); ok {
			out[key] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func attributeString(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		return v.String(), true
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(encoded), true
	}
}
