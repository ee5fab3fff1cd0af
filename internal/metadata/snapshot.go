package metadata

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/satyamsundaram01/confsync/internal/domain"
)

// WriteSnapshot serializes the host tags to the transient snapshot file as
// a single-element sequence containing the tags mapping, the shape the
// downstream tooling reads once per cycle. The snapshot is rewritten every
// cycle and never read back by the agent itself.
func WriteSnapshot(path string, meta *domain.HostMetadata) error {
	data, err := yaml.Marshal([]map[string]string{meta.Tags})
	if err != nil {
		return fmt.Errorf("failed to marshal tags snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write tags snapshot: %w", err)
	}

	return nil
}
