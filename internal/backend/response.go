package backend

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"quizqa/internal/services"
)

// ResultSchema returns the JSON schema a response for checks must satisfy:
//
//	{"checks": {"<name>": {"score": 0|1, "passed": bool, "rationale": "..."}}}
func ResultSchema(checks []string) map[string]any {
	properties := make(map[string]any, len(checks))
	required := make([]string, 0, len(checks))
	for _, name := range sortedNames(checks) {
		properties[name] = map[string]any{
			"type":     "object",
			"required": []string{"score", "passed", "rationale"},
			"properties": map[string]any{
				"score":     map[string]any{"type": "integer", "enum": []int{0, 1}},
				"passed":    map[string]any{"type": "boolean"},
				"rationale": map[string]any{"type": "string"},
			},
		}
		required = append(required, name)
	}
	checksSchema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		checksSchema["required"] = required
	}
	return map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"required":   []string{"checks"},
		"properties": map[string]any{"checks": checksSchema},
	}
}

// SchemaJSON renders ResultSchema for inclusion in a prompt.
func SchemaJSON(checks []string) string {
	data, err := json.MarshalIndent(ResultSchema(checks), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

type strictResponse struct {
	Checks map[string]strictVerdict `json:"checks"`
}

type strictVerdict struct {
	Score     float64 `json:"score"`
	Passed    bool    `json:"passed"`
	Rationale string  `json:"rationale"`
}

// Decode parses raw strictly: it must be a bare JSON object matching
// ResultSchema(checks) with score and passed agreeing for every check.
// Failures are tagged services.ErrMalformed.
func Decode(raw string, checks []string) (Verdicts, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, malformed("empty response", nil)
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(ResultSchema(checks)),
		gojsonschema.NewStringLoader(trimmed),
	)
	if err != nil {
		return nil, malformed("invalid json: "+Snippet(trimmed), err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			problems = append(problems, fmt.Sprintf("%s: %s", verr.Field(), verr.Description()))
		}
		return nil, malformed("schema violation: "+strings.Join(problems, "; "), nil)
	}

	var parsed strictResponse
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil, malformed("decode", err)
	}
	verdicts := make(Verdicts, len(checks))
	for _, name := range checks {
		entry := parsed.Checks[name]
		score := int(entry.Score)
		if entry.Passed != (score == 1) {
			return nil, malformed(fmt.Sprintf("check %s: score %d disagrees with passed=%t", name, score, entry.Passed), nil)
		}
		verdicts[name] = Verdict{Score: score, Passed: entry.Passed, Rationale: strings.TrimSpace(entry.Rationale)}
	}
	return verdicts, nil
}

// Salvage is the lenient fallback for responses Decode rejects. It strips code
// fences and surrounding prose, accepts common aliases for the score and
// rationale fields, and matches check names case-insensitively. The result
// may cover only some of checks; an error is returned only when none could be
// recovered.
func Salvage(raw string, checks []string) (Verdicts, error) {
	payload := ExtractJSON(raw)
	if payload == "" {
		return nil, malformed("empty response", nil)
	}
	var doc any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, malformed("salvage: "+Snippet(raw), err)
	}

	entries := locateEntries(doc)
	verdicts := make(Verdicts, len(checks))
	for _, name := range checks {
		value, ok := entries[normalizeKey(name)]
		if !ok {
			continue
		}
		if verdict, ok := lenientVerdict(value); ok {
			verdicts[name] = verdict
		}
	}
	if len(verdicts) == 0 {
		return nil, malformed("salvage found no checks: "+Snippet(raw), nil)
	}
	return verdicts, nil
}

// Missing returns the checks absent from verdicts, in input order.
func Missing(verdicts Verdicts, checks []string) []string {
	var missing []string
	for _, name := range checks {
		if _, ok := verdicts[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// locateEntries finds the per-check values in a loosely shaped document and
// indexes them by normalized name.
func locateEntries(doc any) map[string]any {
	out := make(map[string]any)
	switch value := doc.(type) {
	case map[string]any:
		for _, key := range []string{"checks", "results", "evaluations"} {
			for k, v := range value {
				if normalizeKey(k) != key {
					continue
				}
				switch inner := v.(type) {
				case map[string]any:
					for name, entry := range inner {
						out[normalizeKey(name)] = entry
					}
				case []any:
					indexList(inner, out)
				}
			}
		}
		if len(out) == 0 {
			for name, entry := range value {
				out[normalizeKey(name)] = entry
			}
		}
	case []any:
		indexList(value, out)
	}
	return out
}

func indexList(list []any, out map[string]any) {
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := firstString(entry, "name", "check", "id")
		if name == "" {
			continue
		}
		out[normalizeKey(name)] = entry
	}
}

var (
	scoreKeys     = []string{"score", "passed", "pass", "result", "verdict", "outcome", "status"}
	rationaleKeys = []string{"rationale", "reason", "reasoning", "explanation", "justification", "comment", "notes"}
)

func lenientVerdict(value any) (Verdict, bool) {
	switch v := value.(type) {
	case map[string]any:
		fields := make(map[string]any, len(v))
		for k, inner := range v {
			fields[normalizeKey(k)] = inner
		}
		for _, key := range scoreKeys {
			raw, ok := fields[key]
			if !ok {
				continue
			}
			if score, ok := lenientScore(raw); ok {
				rationale, _ := firstString(fields, rationaleKeys...)
				return Verdict{Score: score, Passed: score == 1, Rationale: rationale}, true
			}
		}
		return Verdict{}, false
	default:
		score, ok := lenientScore(v)
		if !ok {
			return Verdict{}, false
		}
		return Verdict{Score: score, Passed: score == 1}, true
	}
}

func lenientScore(value any) (int, bool) {
	switch v := value.(type) {
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case float64:
		if v >= 0.5 {
			return 1, true
		}
		return 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "pass", "passed", "yes", "true", "1", "ok", "correct", "valid":
			return 1, true
		case "fail", "failed", "no", "false", "0", "incorrect", "invalid":
			return 0, true
		}
	}
	return 0, false
}

func firstString(fields map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if s, ok := fields[key].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed, true
			}
		}
	}
	return "", false
}

func normalizeKey(name string) string {
	replacer := strings.NewReplacer("-", "_", " ", "_")
	return replacer.Replace(strings.ToLower(strings.TrimSpace(name)))
}

func sortedNames(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}

func malformed(message string, err error) error {
	return services.Wrap(services.ErrMalformed, "backend", "decode", message, err)
}

// ExtractJSON strips code fences and surrounding prose from a model reply,
// returning the outermost JSON object or array it contains.
func ExtractJSON(content string) string {
	trimmed := strings.TrimSpace(stripCodeFenceBlock(content))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return trimmed
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	if start := strings.Index(trimmed, "["); start >= 0 {
		if end := strings.LastIndex(trimmed, "]"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	return trimmed
}

func stripCodeFenceBlock(content string) string {
	trimmed := strings.TrimSpace(content)
	if start := strings.Index(trimmed, "```"); start > 0 {
		trimmed = trimmed[start:]
	}
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := trimmed[3:]
	body = strings.TrimLeft(body, " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
		body = strings.TrimLeft(body, " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

// Snippet returns a single-line, length-limited rendering of content for logs.
func Snippet(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "<empty>"
	}
	replacer := strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")
	clean := replacer.Replace(trimmed)
	clean = strings.Join(strings.Fields(clean), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
