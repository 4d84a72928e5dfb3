package rules

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	domain "github.com/vastulab/vastu-backend/internal/domain/rules"
)

// LoadFile parses a YAML rule seed file.
func LoadFile(path string) ([]*domain.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Rules []*domain.Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing rule seed %s: %w", path, err)
	}
	for i, r := range doc.Rules {
		if r.ID == "" || r.Name == "" {
			return nil, fmt.Errorf("rule #%d in %s is missing id or name", i, path)
		}
	}
	return doc.Rules, nil
}

// Seed upserts the parsed rules into the catalog. Re-seeding an unchanged
// file still bumps versions; the catalog keeps only the counter, not
// historical revisions.
func Seed(ctx context.Context, catalog domain.Catalog, rules []*domain.Rule) error {
	for _, r := range rules {
		if err := catalog.Save(ctx, r); err != nil {
			return fmt.Errorf("seeding rule %s: %w", r.ID, err)
		}
	}
	return nil
}
