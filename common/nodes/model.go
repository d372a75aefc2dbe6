package nodes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaModel validates raw outputs against a JSON schema derived from a
// node's output_schema config, a flat field -> type-name map.
type schemaModel struct {
	once     sync.Once
	schema   *jsonschema.Schema
	compile  func() (*jsonschema.Schema, error)
	compiled error
}

// permissiveModel accepts any map. Used when a node declares no output_schema.
type permissiveModel struct{}

func (permissiveModel) Validate(raw map[string]any) (Output, error) {
	return MapOutput(raw), nil
}

// NewOutputModel builds an output model from a node config. The config's
// output_schema maps field names to the type names int, float, bool and
// string; unknown names validate as any.
func NewOutputModel(config map[string]any) OutputModel {
	raw, ok := config["output_schema"].(map[string]any)
	if !ok || len(raw) == 0 {
		return permissiveModel{}
	}

	m := &schemaModel{}
	m.compile = func() (*jsonschema.Schema, error) {
		return compileOutputSchema(raw)
	}
	return m
}

func (m *schemaModel) Validate(raw map[string]any) (Output, error) {
	m.once.Do(func() {
		m.schema, m.compiled = m.compile()
	})
	if m.compiled != nil {
		return nil, m.compiled
	}

	// Round-trip through JSON so Go-native values (int, time strings) take
	// the shapes the validator expects.
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal output for validation: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("reparse output for validation: %w", err)
	}
	if err := m.schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("output does not match schema: %w", err)
	}
	return MapOutput(raw), nil
}

func compileOutputSchema(fields map[string]any) (*jsonschema.Schema, error) {
	props := make(map[string]any, len(fields))
	required := make([]string, 0, len(fields))
	for name, typ := range fields {
		typeName, _ := typ.(string)
		if jt := jsonType(typeName); jt != "" {
			props[name] = map[string]any{"type": jt}
		} else {
			props[name] = map[string]any{}
		}
		required = append(required, name)
	}

	doc := map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal output schema: %w", err)
	}
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("reparse output schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("output.schema.json", parsed); err != nil {
		return nil, fmt.Errorf("add output schema resource: %w", err)
	}
	schema, err := c.Compile("output.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile output schema: %w", err)
	}
	return schema, nil
}

func jsonType(name string) string {
	switch name {
	case "int", "integer":
		return "integer"
	case "float", "number":
		return "number"
	case "bool", "boolean":
		return "boolean"
	case "string", "str":
		return "string"
	}
	return ""
}
