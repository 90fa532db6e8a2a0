package validation

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// JSONSchemaFormatPrefix is the format prefix of JSON Schema documents,
// e.g. "JsonSchema/draft-07"
const JSONSchemaFormatPrefix = "jsonschema"

// IsJSONSchemaFormat reports whether a resource format names JSON Schema
func IsJSONSchemaFormat(format string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(format)), JSONSchemaFormatPrefix)
}

// ValidateSchemaDefinition validates that a schema definition is valid JSON Schema
func ValidateSchemaDefinition(definition []byte) error {
	// Parse as JSON first
	var schemaJSON interface{}
	if err := json.Unmarshal(definition, &schemaJSON); err != nil {
		return ValidationError{Field: "schema", Reason: "invalid JSON: " + err.Error()}
	}

	// Try to compile the schema
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(definition)); err != nil {
		return ValidationError{Field: "schema", Reason: err.Error()}
	}

	if _, err := compiler.Compile("schema.json"); err != nil {
		return ValidationError{Field: "schema", Reason: err.Error()}
	}
	return nil
}

// ValidateContent checks version content against its resource format.
// Only JSON Schema formats are checked; other formats pass.
func ValidateContent(format string, content []byte) error {
	if !IsJSONSchemaFormat(format) {
		return nil
	}
	return ValidateSchemaDefinition(content)
}
