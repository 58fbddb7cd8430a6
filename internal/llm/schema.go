package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// personStringFields are the optional string attributes of a person object,
// keyed by their JSON name.
var personStringFields = []string{
	"email", "position", "company", "phone", "location",
	"department", "linkedin", "website", "additionalInfo",
}

// BuildPersonJSONSchema returns a JSON-Schema (draft 2020-12 subset) for one
// person object. Unknown keys are tolerated; the parser ignores them.
func BuildPersonJSONSchema() map[string]any {
	props := map[string]any{
		"name":       map[string]any{"type": "string", "minLength": 1},
		"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
	}
	for _, f := range personStringFields {
		props[f] = map[string]any{"type": "string"}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   []string{"name"},
	}
}

// BuildEnvelopeJSONSchema describes the outer model response. Items are not
// constrained here: each one is checked against the person schema on its own
// so one bad entry does not discard the rest.
func BuildEnvelopeJSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"people": map[string]any{"type": "array"},
		},
		"required": []string{"people"},
	}
}

// CompileSchema compiles a schema map once so it can validate many documents.
func CompileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

var (
	personSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
		return CompileSchema(BuildPersonJSONSchema())
	})
	envelopeSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
		return CompileSchema(BuildEnvelopeJSONSchema())
	})
)

// validPerson reports whether a normalised person object satisfies the
// person schema.
func validPerson(m map[string]any) bool {
	schema, err := personSchema()
	if err != nil {
		return false
	}
	return schema.Validate(m) == nil
}

// validEnvelope reports whether a decoded response has the envelope shape.
func validEnvelope(v any) bool {
	schema, err := envelopeSchema()
	if err != nil {
		return false
	}
	return schema.Validate(v) == nil
}
