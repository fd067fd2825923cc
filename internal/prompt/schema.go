package prompt

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// StructuredSchema is the fixed output schema for structured character
// generation: an object with a string name and an array of label/value
// pairs. Keeping this a schema (rather than free prose) lets every vendor
// be parsed deterministically.
func StructuredSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"name": {Type: "string", Description: "The character's name."},
			"fields": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"label": {Type: "string", Description: "One of the requested field labels, verbatim."},
						"value": {Type: "string"},
					},
					Required: []string{"label", "value"},
				},
			},
		},
		Required: []string{"name", "fields"},
	}
}

// StructuredSchemaJSON renders the schema for inlining into instructions
// sent to vendors without native schema support.
func StructuredSchemaJSON() (string, error) {
	data, err := json.Marshal(StructuredSchema())
	if err != nil {
		return "", fmt.Errorf("failed to marshal structured schema: %w", err)
	}
	return string(data), nil
}
