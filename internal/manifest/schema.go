package manifest

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Entry is one tag-to-keys mapping inside a business section. The central
// store emits each entry as a single-key mapping, e.g. {prod: [/acme/prod.yml]}.
type Entry map[string][]string

// Manifest is the local cached copy of the central key manifest. The
// document has one fixed field (commons) and one field per business name,
// so businesses are collected with a custom unmarshaler.
type Manifest struct {
	// Commons lists key paths that apply to every host, in document order.
	Commons []string

	// Businesses maps a business name to its ordered tag entries.
	Businesses map[string][]Entry
}

// UnmarshalYAML decodes the dynamic-key manifest document.
func (m *Manifest) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("manifest: expected mapping at document root, got %v", node.Kind)
	}

	m.Businesses = make(map[string][]Entry)

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]

		if keyNode.Value == "commons" {
			if err := valNode.Decode(&m.Commons); err != nil {
				return fmt.Errorf("manifest: invalid commons section: %w", err)
			}
			continue
		}

		var entries []Entry
		if err := valNode.Decode(&entries); err != nil {
			return fmt.Errorf("manifest: invalid business %q: %w", keyNode.Value, err)
		}
		m.Businesses[keyNode.Value] = entries
	}

	return nil
}
