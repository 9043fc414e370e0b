package scoring

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"examguard/pkg/types"
)

// catalogFile is the on-disk shape of the assessment catalog
type catalogFile struct {
	Assessments []*types.Assessment `yaml:"assessments"`
}

// LoadCatalog reads and validates the YAML assessment catalog at path
func LoadCatalog(path string) ([]*types.Assessment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read assessment catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a catalog document. Points default to 1 and
// TotalPoints is computed.
func ParseCatalog(data []byte) ([]*types.Assessment, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse assessment catalog: %w", err)
	}

	seen := make(map[string]bool, len(file.Assessments))
	for i, a := range file.Assessments {
		if a == nil || a.ID == "" {
			return nil, fmt.Errorf("assessment %d: id is required", i)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("assessment %s: duplicate id", a.ID)
		}
		seen[a.ID] = true
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("assessment %s: %w", a.ID, err)
		}
	}
	return file.Assessments, nil
}
