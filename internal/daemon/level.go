package daemon

import (
	"encoding/json"
	"strings"
)

var levelKeywords = []struct {
	keyword string
	level   string
}{
	{"fatal", "error"},
	{"panic", "error"},
	{"error", "error"},
	{"warn", "warn"},
	{"debug", "debug"},
}

// parseLine turns one tailed line into level, message and metadata. JSON
// objects contribute their level/msg fields and everything else becomes
// metadata; plain text is classified by keyword.
func parseLine(line string) (string, string, map[string]any) {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") {
		var fields map[string]any
		if err := json.Unmarshal([]byte(trimmed), &fields); err == nil {
			return fromJSON(fields, trimmed)
		}
	}
	return detectLevel(trimmed), trimmed, map[string]any{}
}

func fromJSON(fields map[string]any, raw string) (string, string, map[string]any) {
	level := "info"
	for _, key := range []string{"level", "severity", "lvl"} {
		if v, ok := fields[key].(string); ok && v != "" {
			level = strings.ToLower(v)
			delete(fields, key)
			break
		}
	}

	message := raw
	for _, key := range []string{"msg", "message"} {
		if v, ok := fields[key].(string); ok {
			message = v
			delete(fields, key)
			break
		}
	}

	return level, message, fields
}

func detectLevel(line string) string {
	lower := strings.ToLower(line)
	for _, kw := range levelKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.level
		}
	}
	return "info"
}
