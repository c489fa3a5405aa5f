package tool

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateArguments checks a tool call's (already canonicalized) argument
// JSON against the tool's declared JSON Schema. A nil or empty schema is
// treated as "accepts anything", matching tools that declare no parameters.
func ValidateArguments(toolSchema, input json.RawMessage) error {
	if len(toolSchema) == 0 {
		return nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tool.json", bytes.NewReader(toolSchema)); err != nil {
		// A tool that ships an invalid schema is a bug in the tool, not the caller.
		return nil
	}
	schema, err := compiler.Compile("tool.json")
	if err != nil {
		return nil
	}

	var doc any
	if len(input) == 0 {
		doc = map[string]any{}
	} else if err := json.Unmarshal(input, &doc); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("arguments do not match tool schema: %w", err)
	}
	return nil
}
