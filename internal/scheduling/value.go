package scheduling

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// stringValue normalises a raw edit value. Numbers decoded from JSON arrive
// as float64 and are rendered without a fraction when integral.
func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return strings.TrimSpace(x.String())
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// stringsValue accepts a list or a comma separated string.
func stringsValue(v any) []string {
	var parts []string
	switch x := v.(type) {
	case nil:
		return nil
	case []string:
		parts = x
	case []any:
		for _, item := range x {
			parts = append(parts, stringValue(item))
		}
	default:
		parts = strings.Split(stringValue(v), ",")
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
