// Package seed loads the default ObjectType and ExtractionRule set from
// an embedded YAML file, the way domkeeper loads its page/selector
// configuration from YAML rather than hand-written Go literals.
package seed

import (
	_ "embed"
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/flowmine/engine/internal/apierr"
	"github.com/flowmine/engine/internal/store"
)

//go:embed seed.yaml
var defaultYAML []byte

// Data is the parsed shape of seed.yaml.
type Data struct {
	ObjectTypes     []objectTypeEntry     `yaml:"object_types"`
	ExtractionRules []extractionRuleEntry `yaml:"extraction_rules"`
}

type objectTypeEntry struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Icon        string `yaml:"icon"`
	Color       string `yaml:"color"`
}

type extractionRuleEntry struct {
	Name         string            `yaml:"name"`
	ObjectType   string            `yaml:"object_type"`
	SourceFields []string          `yaml:"source_fields"`
	Pattern      string            `yaml:"pattern"`
	NameTemplate string            `yaml:"name_template"`
	DataMapping  map[string]string `yaml:"data_mapping"`
	Priority     int               `yaml:"priority"`
}

// Default parses the engine's embedded default seed set.
func Default() (Data, error) {
	return Parse(defaultYAML)
}

// Parse decodes a seed YAML document.
func Parse(raw []byte) (Data, error) {
	var d Data
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return Data{}, fmt.Errorf("seed: parse: %w", err)
	}
	return d, nil
}

// IsEmpty reports whether the store has no ObjectTypes yet, the condition
// under which cmd/engine seeds automatically on serve.
func IsEmpty(ctx context.Context, st *store.Store) (bool, error) {
	types, err := st.ListObjectTypes(ctx)
	if err != nil {
		return false, err
	}
	return len(types) == 0, nil
}

// Apply loads d's ObjectTypes and ExtractionRules into st. Entries that
// already exist (matched by name) are left untouched rather than
// duplicated, so `rules seed` is safe to run again after a user has added
// their own types and rules. ExtractionRule names are not unique at the
// store layer (id is), so Apply de-dupes against existing rule names
// itself before inserting.
func Apply(ctx context.Context, st *store.Store, d Data) error {
	for _, ot := range d.ObjectTypes {
		err := st.CreateObjectType(ctx, store.ObjectType{
			Name:        ot.Name,
			DisplayName: ot.DisplayName,
			Icon:        ot.Icon,
			Color:       ot.Color,
		})
		if err != nil && !isConflict(err) {
			return fmt.Errorf("seed: object type %q: %w", ot.Name, err)
		}
	}

	existing, err := st.ListExtractionRules(ctx, "")
	if err != nil {
		return fmt.Errorf("seed: list existing rules: %w", err)
	}
	haveRule := make(map[string]bool, len(existing))
	for _, r := range existing {
		haveRule[r.Name] = true
	}

	for _, r := range d.ExtractionRules {
		if haveRule[r.Name] {
			continue
		}
		_, err := st.CreateExtractionRule(ctx, store.ExtractionRule{
			Name:         r.Name,
			ObjectType:   r.ObjectType,
			SourceFields: r.SourceFields,
			Pattern:      r.Pattern,
			NameTemplate: r.NameTemplate,
			DataMapping:  r.DataMapping,
			Enabled:      true,
			Priority:     r.Priority,
			Provenance:   store.ProvenanceSeed,
			Confidence:   1.0,
		})
		if err != nil {
			return fmt.Errorf("seed: extraction rule %q: %w", r.Name, err)
		}
	}
	return nil
}

func isConflict(err error) bool {
	apiErr, ok := apierr.As(err)
	return ok && apiErr.Code == apierr.Conflict
}
