package config

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateJSONSchema reflects the Config struct into a JSON Schema
// Draft 2020-12 document, the same document the semantic validation
// phase compiles.
func GenerateJSONSchema() ([]byte, error) {
	var r jsonschema.Reflector
	s := r.Reflect(&Config{})
	s.ID = "https://github.com/pipelab/pipespec/schemas/pipespec-v0.json"
	s.Title = "Pipespec Harness Configuration v0"
	s.Description = "Schema for pipespec.yaml harness configuration documents (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
