package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest declares a subprocess plugin: the tool identity it exposes, the
// binary that implements it, and the parameters the runtime synthesizes a
// JSON Schema from. Manifests may be JSON (plugin.json, manifest.json) or
// YAML (plugin.yaml, manifest.yaml).
type Manifest struct {
	Tool       ManifestTool        `json:"tool" yaml:"tool"`
	Exec       ManifestExec        `json:"exec" yaml:"exec"`
	Transport  string              `json:"transport,omitempty" yaml:"transport,omitempty"` // reserved; only "stdio" is implemented
	Parameters []ManifestParameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// ManifestTool is the identity surfaced to the LLM as a tool definition.
type ManifestTool struct {
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description" yaml:"description"`
}

// ManifestExec names the binary the runtime spawns for every invocation.
type ManifestExec struct {
	Binary string `json:"binary" yaml:"binary"`
}

// ManifestParameter describes one argument accepted by the plugin tool.
type ManifestParameter struct {
	Name        string      `json:"name" yaml:"name"`
	Type        string      `json:"type" yaml:"type"` // string, number, boolean, object, array
	Description string      `json:"description" yaml:"description"`
	Required    bool        `json:"required" yaml:"required"`
	Default     interface{} `json:"default,omitempty" yaml:"default,omitempty"`
}

// manifestNames are the accepted manifest filenames, JSON first.
var manifestNames = []string{"plugin.json", "manifest.json", "plugin.yaml", "manifest.yaml"}

// LoadManifest reads and validates a plugin manifest from a directory.
func LoadManifest(pluginDir string) (*Manifest, error) {
	var data []byte
	var found string

	for _, name := range manifestNames {
		path := filepath.Join(pluginDir, name)
		if d, err := os.ReadFile(path); err == nil {
			data, found = d, name
			break
		}
	}

	if data == nil {
		return nil, fmt.Errorf("no manifest found in %s (tried: %v)", pluginDir, manifestNames)
	}

	var m Manifest
	if strings.HasSuffix(found, ".yaml") {
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse manifest: %w", err)
		}
	} else if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	return &m, nil
}

// Validate checks that the fields required to register and invoke the
// plugin are present.
func (m *Manifest) Validate() error {
	if m.Tool.Name == "" {
		return fmt.Errorf("missing required field: tool.name")
	}
	if m.Tool.Version == "" {
		return fmt.Errorf("missing required field: tool.version")
	}
	if m.Exec.Binary == "" {
		return fmt.Errorf("missing required field: exec.binary")
	}
	if m.Transport != "" && m.Transport != "stdio" {
		return fmt.Errorf("unsupported transport: %s", m.Transport)
	}
	for _, p := range m.Parameters {
		if p.Name == "" {
			return fmt.Errorf("parameter missing name")
		}
	}
	return nil
}

// Schema synthesizes a JSON Schema object from the manifest's parameter
// list, matching the shape the agent loop hands the LLM provider for every
// other tool.
func (m *Manifest) Schema() map[string]interface{} {
	properties := make(map[string]interface{}, len(m.Parameters))
	required := make([]string, 0, len(m.Parameters))

	for _, p := range m.Parameters {
		prop := map[string]interface{}{
			"type":        jsonSchemaType(p.Type),
			"description": p.Description,
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func jsonSchemaType(t string) string {
	switch t {
	case "string", "number", "boolean", "object", "array", "integer", "null":
		return t
	default:
		return "string"
	}
}
