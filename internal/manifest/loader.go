package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader handles loading and parsing of the cached manifest file
type Loader struct {
	filePath string
}

// NewLoader creates a new manifest loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads and parses the manifest file. The manifest is owned by the
// central store; the agent only ever reads the local cached copy.
func (l *Loader) Load() (*Manifest, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest yaml: %w", err)
	}

	return &m, nil
}
