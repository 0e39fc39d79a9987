// Package tools implements the capabilities exposed to the model: file
// content extraction, document retrieval, image generation, remote code
// interpretation and generic MCP passthrough.
package tools

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// generateSchema reflects a parameter struct into the JSON schema
// advertised to the model. Fields without omitempty become required;
// jsonschema and jsonschema_description tags carry enums, defaults and
// descriptions.
func generateSchema[T any]() json.RawMessage {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	// The validator chokes on a draft banner it does not know; the
	// declaration works fine without one.
	schema.Version = ""
	data, err := json.Marshal(schema)
	if err != nil {
		panic(err)
	}
	return data
}

// mustSchemaJSON marshals a hand-built schema. For declarations whose
// descriptions cannot live in struct tags.
func mustSchemaJSON(schema map[string]any) json.RawMessage {
	data, err := json.Marshal(schema)
	if err != nil {
		panic(err)
	}
	return data
}
