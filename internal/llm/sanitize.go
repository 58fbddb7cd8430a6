package llm

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/people-extractor/internal/common"
	"github.com/joseph-ayodele/people-extractor/internal/entity"
)

// synonyms maps keys models commonly emit onto our field names, in
// priority order.
var synonyms = [][2]string{
	{"full_name", "name"},
	{"fullName", "name"},
	{"title", "position"},
	{"job_title", "position"},
	{"jobTitle", "position"},
	{"role", "position"},
	{"organization", "company"},
	{"organisation", "company"},
	{"employer", "company"},
	{"phone_number", "phone"},
	{"phoneNumber", "phone"},
	{"mobile", "phone"},
	{"address", "location"},
	{"city", "location"},
	{"linkedIn", "linkedin"},
	{"linkedin_url", "linkedin"},
	{"url", "website"},
	{"additional_info", "additionalInfo"},
	{"notes", "additionalInfo"},
}

// Field length caps, in runes. Longer values are cut, never rejected.
const (
	maxNameLen  = 300
	maxFieldLen = 2000
)

// NormalizePerson renames synonyms, coerces scalar values to trimmed
// strings, drops nulls and empties, truncates overlong values, lowercases
// the email and blanks it when it is not an address, and clamps a numeric
// confidence. The input map is not modified.
func NormalizePerson(in map[string]any) map[string]any {
	m := make(map[string]any, len(in))
	for k, v := range in {
		m[k] = v
	}
	for _, pair := range synonyms {
		from, to := pair[0], pair[1]
		v, ok := m[from]
		if !ok {
			continue
		}
		if _, exists := m[to]; !exists {
			m[to] = v
		}
		delete(m, from)
	}

	for _, k := range append([]string{"name"}, personStringFields...) {
		v, ok := m[k]
		if !ok {
			continue
		}
		s, ok := scalarString(v)
		if !ok || s == "" {
			delete(m, k)
			continue
		}
		limit := maxFieldLen
		if k == "name" {
			limit = maxNameLen
		}
		m[k] = truncateRunes(s, limit)
	}

	if e, ok := m["email"].(string); ok {
		e = strings.ToLower(e)
		if !common.IsEmail(e) {
			e = ""
		}
		m["email"] = e
	}

	if v, ok := m["confidence"]; ok {
		if c, ok := numeric(v); ok {
			m["confidence"] = entity.ClampConfidence(c)
		} else {
			delete(m, "confidence")
		}
	}
	return m
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := scalarString(item); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", "), true
	default:
		return "", false
	}
}

func numeric(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// toPerson builds a record from a normalised map. Record confidence falls
// back to the envelope's.
func toPerson(m map[string]any, fallbackConfidence float64) entity.PersonRecord {
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	conf := fallbackConfidence
	if c, ok := m["confidence"].(float64); ok {
		conf = c
	}
	return entity.PersonRecord{
		Name:           str("name"),
		Email:          str("email"),
		Position:       str("position"),
		Company:        str("company"),
		Phone:          str("phone"),
		Location:       str("location"),
		Department:     str("department"),
		LinkedIn:       str("linkedin"),
		Website:        str("website"),
		AdditionalInfo: str("additionalInfo"),
		Confidence:     entity.ClampConfidence(conf),
	}
}
