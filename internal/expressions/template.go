package expressions

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Substitute replaces every {{key}} in text with the string form of data[key].
// Keys are trimmed of surrounding whitespace. Placeholders whose key is absent
// from data are left verbatim.
func Substitute(text string, data map[string]any) string {
	if !strings.Contains(text, "{{") {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	rest := text
	for {
		open := strings.Index(rest, "{{")
		if open == -1 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[open+2:], "}}")
		if end == -1 {
			b.WriteString(rest)
			break
		}
		end += open + 2

		b.WriteString(rest[:open])
		key := strings.TrimSpace(rest[open+2 : end])
		if v, ok := data[key]; ok && key != "" {
			b.WriteString(Stringify(v))
		} else {
			b.WriteString(rest[open : end+2])
		}
		rest = rest[end+2:]
	}
	return b.String()
}

// SubstituteValue applies Substitute to string values and returns any other
// value unchanged.
func SubstituteValue(v any, data map[string]any) any {
	if s, ok := v.(string); ok {
		return Substitute(s, data)
	}
	return v
}

// Stringify renders a payload value for human-readable text. A present null
// renders as "null".
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case float64:
		// JSON numbers arrive as float64; integral values below 1e21 print
		// without exponent.
		if val == math.Trunc(val) && math.Abs(val) < 1e21 {
			return strconv.FormatFloat(val, 'f', -1, 64)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
