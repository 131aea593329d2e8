package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// blobSchema describes the persisted store blob: a mapping from test
// identifier to session, where each session carries an epoch-millisecond
// timestamp and an ordered route list.
const blobSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": {
    "type": "object",
    "required": ["timestamp", "routes"],
    "properties": {
      "timestamp": {"type": "integer"},
      "routes": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["url", "method", "status"],
          "properties": {
            "fixtureId": {"type": "string"},
            "url": {"type": "string"},
            "method": {"type": "string"},
            "status": {"type": "integer"},
            "headers": {
              "type": "object",
              "additionalProperties": {"type": "string"}
            }
          }
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compileBlobSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("store.json", strings.NewReader(blobSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("store.json")
	})
	return compiledSchema, schemaErr
}

// validateBlob checks raw blob bytes against the store schema.
func validateBlob(data []byte) error {
	schema, err := compileBlobSchema()
	if err != nil {
		return fmt.Errorf("failed to compile store schema: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("schema violation: %w", err)
	}
	return nil
}
