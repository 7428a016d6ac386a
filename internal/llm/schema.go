package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ObjectSchema accepts any JSON object and nothing else.
func ObjectSchema() map[string]any {
	return map[string]any{"type": "object"}
}

var (
	objectSchemaOnce sync.Once
	objectSchema     *jsonschema.Schema
	objectSchemaErr  error
)

// ValidateObject checks that data is a single JSON object.
func ValidateObject(data []byte) error {
	objectSchemaOnce.Do(func() {
		objectSchema, objectSchemaErr = compileSchema(ObjectSchema())
	})
	if objectSchemaErr != nil {
		return objectSchemaErr
	}
	return validate(objectSchema, data)
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
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

func validate(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
