package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/people-extractor/constants"
	"github.com/joseph-ayodele/people-extractor/internal/entity"
)

// ParseMethod records which recovery step produced a ParseResult.
type ParseMethod string

const (
	MethodDirect    ParseMethod = "direct"
	MethodTruncated ParseMethod = "truncated"
	MethodRepaired  ParseMethod = "repaired"
	MethodFallback  ParseMethod = "fallback"
	MethodFailed    ParseMethod = "failed"
)

// ParseResult is the structured content recovered from a model response.
type ParseResult struct {
	People     []entity.PersonRecord
	Confidence float64
	Summary    string
	Method     ParseMethod
}

var (
	reFence         = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")
	reOpenFence     = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*)$")
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
	rePersonObject  = regexp.MustCompile(`\{[^{}]*"name"\s*:[^{}]*\}`)
)

// ParseResponse recovers people from free-form model text. It never fails:
// unrecoverable input yields no people, confidence 0.1 and summary
// "parse failed".
func ParseResponse(raw string) ParseResult {
	body, truncated := jsonCandidate(raw)
	if body == "" {
		return failedParse()
	}

	if env, ok := decodeEnvelope(body); ok {
		return finishEnvelope(env, MethodDirect)
	}

	if truncated {
		if people := extractPersonObjects(body, constants.ConfidenceTruncated); len(people) > 0 {
			return ParseResult{
				People:     people,
				Confidence: constants.ConfidenceTruncated,
				Summary:    fmt.Sprintf("recovered %d people from truncated response", len(people)),
				Method:     MethodTruncated,
			}
		}
	}

	if env, ok := decodeEnvelope(reTrailingComma.ReplaceAllString(body, "$1")); ok {
		return finishEnvelope(env, MethodRepaired)
	}

	if people := extractPersonObjects(body, constants.ConfidenceRepaired); len(people) > 0 {
		return ParseResult{
			People:     people,
			Confidence: constants.ConfidenceRepaired,
			Summary:    fmt.Sprintf("recovered %d people from malformed response", len(people)),
			Method:     MethodFallback,
		}
	}
	return failedParse()
}

func failedParse() ParseResult {
	return ParseResult{
		People:     []entity.PersonRecord{},
		Confidence: constants.ConfidenceFailed,
		Summary:    "parse failed",
		Method:     MethodFailed,
	}
}

// jsonCandidate returns the JSON-looking part of raw: the first fenced block
// when present, else the span from the first '{' to the last '}' (or to the
// end when no '}' follows). truncated reports that the candidate opens more
// objects or arrays than it closes.
func jsonCandidate(raw string) (body string, truncated bool) {
	text := strings.TrimSpace(raw)
	if m := reFence.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	} else if m := reOpenFence.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return "", false
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return text[start:], true
	}
	body = text[start : end+1]
	return body, openDepth(body) > 0
}

// openDepth counts unclosed '{' and '[' outside string literals.
func openDepth(s string) int {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
		}
	}
	return depth
}

// decodeEnvelope parses body and checks it against the envelope schema.
func decodeEnvelope(body string) (map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil, false
	}
	if !validEnvelope(v) {
		return nil, false
	}
	env, ok := v.(map[string]any)
	return env, ok
}

func finishEnvelope(env map[string]any, method ParseMethod) ParseResult {
	conf := constants.ConfidenceDefault
	if c, ok := numeric(env["confidence"]); ok {
		conf = c
	}
	conf = entity.ClampConfidence(conf)

	items, _ := env["people"].([]any)
	people := make([]entity.PersonRecord, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if p, ok := personFrom(obj, conf); ok {
			people = append(people, p)
		}
	}

	summary, _ := env["summary"].(string)
	summary = strings.TrimSpace(summary)
	if summary == "" {
		summary = fmt.Sprintf("extracted %d people", len(people))
	}
	return ParseResult{People: people, Confidence: conf, Summary: summary, Method: method}
}

// extractPersonObjects pulls every complete flat object carrying a "name"
// key out of body and parses each one on its own.
func extractPersonObjects(body string, conf float64) []entity.PersonRecord {
	var people []entity.PersonRecord
	for _, frag := range rePersonObject.FindAllString(body, -1) {
		var obj map[string]any
		if err := json.Unmarshal([]byte(frag), &obj); err != nil {
			if err := json.Unmarshal([]byte(reTrailingComma.ReplaceAllString(frag, "$1")), &obj); err != nil {
				continue
			}
		}
		if p, ok := personFrom(obj, conf); ok {
			people = append(people, p)
		}
	}
	return people
}

func personFrom(obj map[string]any, conf float64) (entity.PersonRecord, bool) {
	m := NormalizePerson(obj)
	if name, _ := m["name"].(string); name == "" {
		return entity.PersonRecord{}, false
	}
	if !validPerson(m) {
		return entity.PersonRecord{}, false
	}
	return toPerson(m, conf), true
}
