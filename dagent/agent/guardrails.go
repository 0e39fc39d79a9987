package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ArgumentValidator checks model-produced tool arguments against the
// tool's declared JSON schema before anything executes them.
type ArgumentValidator struct{}

// NewArgumentValidator creates a validator.
func NewArgumentValidator() *ArgumentValidator {
	return &ArgumentValidator{}
}

// Validate checks args against schema. An empty schema accepts anything
// that parses as JSON.
func (v *ArgumentValidator) Validate(args, schema []byte) error {
	if !json.Valid(args) {
		return fmt.Errorf("arguments are not valid JSON")
	}
	if len(schema) == 0 {
		return nil
	}

	schemaLoader := gojsonschema.NewBytesLoader(schema)
	argsLoader := gojsonschema.NewBytesLoader(args)
	result, err := gojsonschema.Validate(schemaLoader, argsLoader)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	issues := make([]string, 0, len(result.Errors()))
	for _, issue := range result.Errors() {
		issues = append(issues, issue.String())
	}
	return fmt.Errorf("arguments rejected by schema: %s", strings.Join(issues, "; "))
}
