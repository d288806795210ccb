package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON Schema describing synf.toml, suitable for editor
// integrations that validate TOML against JSON Schema.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	s := r.Reflect(&File{})
	s.Title = "synf configuration"
	s.Description = "Configuration for `synf dev`, read from " + FileName + " in the project root."
	return json.MarshalIndent(s, "", "  ")
}
