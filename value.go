package analytics

import (
	"encoding/json"
	"fmt"
)

// Properties holds the free-form attributes of a track, screen, or page call.
// Values are restricted to the JSON value domain: strings, booleans, numbers,
// nil, []any, and map[string]any, nested to any depth.
type Properties map[string]any

// Traits holds the free-form attributes of an identify or group call.
// The value domain is the same as Properties.
type Traits map[string]any

// sanitizeMap deep-copies a property map, coercing every value into the JSON
// value domain. Keys with unrepresentable values are replaced by their
// fmt.Sprintf rendering rather than dropped, so a bad value never loses the
// rest of the map.
func sanitizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		json.Number:
		return val
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	case map[string]any:
		return sanitizeMap(val)
	case Properties:
		return sanitizeMap(val)
	case Traits:
		return sanitizeMap(val)
	default:
		if marshaled, err := json.Marshal(val); err == nil {
			var decoded any
			if err := json.Unmarshal(marshaled, &decoded); err == nil {
				return decoded
			}
		}
		return fmt.Sprintf("%v", val)
	}
}
