package evalctx

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Format renders a resolved value as text. nil renders as "", numbers without
// trailing zeros, arrays as a comma separated list and objects as JSON.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case time.Time:
		return x.Format(time.RFC3339)
	case map[string]any, Context:
		data, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(data)
	}
	if items, ok := Elements(v); ok {
		parts := make([]string, 0, len(items))
		for _, item := range items {
			parts = append(parts, Format(item))
		}
		return strings.Join(parts, ", ")
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return s
}
