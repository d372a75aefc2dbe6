package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// documentSchema constrains the wire format of a workflow definition before
// it is unmarshaled. Structural rules the schema cannot express (unique ids,
// acyclicity, router handles) are checked by Validate.
const documentSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["nodes"],
	"properties": {
		"nodes": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "node_type"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"title": {"type": "string"},
					"node_type": {"type": "string", "minLength": 1},
					"config": {"type": "object"},
					"parent_id": {"type": ["string", "null"]}
				}
			}
		},
		"links": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["source_id", "target_id"],
				"properties": {
					"source_id": {"type": "string", "minLength": 1},
					"target_id": {"type": "string", "minLength": 1},
					"source_handle": {"type": ["string", "null"]}
				}
			}
		},
		"test_inputs": {
			"type": "array",
			"items": {"type": "object"}
		}
	}
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compiledDocumentSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchema))
		if err != nil {
			schemaErr = fmt.Errorf("unmarshal workflow schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("workflow.schema.json", doc); err != nil {
			schemaErr = fmt.Errorf("add workflow schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile("workflow.schema.json")
	})
	return compiledSchema, schemaErr
}

// Parse validates a JSON workflow document against the wire schema and
// unmarshals it into a Definition.
func Parse(data []byte) (*Definition, error) {
	schema, err := compiledDocumentSchema()
	if err != nil {
		return nil, err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, &InvalidGraphError{Reason: fmt.Sprintf("malformed document: %v", err)}
	}
	if err := schema.Validate(inst); err != nil {
		return nil, &InvalidGraphError{Reason: fmt.Sprintf("document does not match workflow schema: %v", err)}
	}

	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, &InvalidGraphError{Reason: fmt.Sprintf("unmarshal definition: %v", err)}
	}
	return &def, nil
}
