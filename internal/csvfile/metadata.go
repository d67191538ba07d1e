package csvfile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// decodeMetadata reads "key = value" comment lines. Values are cast to
// int, float or bool where possible. Other lines are ignored.
func decodeMetadata(lines []string) map[string]any {
	m := make(map[string]any)
	for _, line := range lines {
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			key, val, ok = strings.Cut(line, ":")
		}
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		m[key] = literal(strings.TrimSpace(val))
	}
	return m
}

// encodeMetadata writes one "key = value" line per entry in key order.
func encodeMetadata(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("%s = %s", k, encodeField(m[k]))
	}
	return lines
}

func literal(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return strings.Trim(s, "\"'")
}
