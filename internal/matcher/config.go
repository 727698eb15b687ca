// Package matcher aligns branch identities across the two revenue sources.
//
// The settlement sheet and the POS API label the same branch differently
// ("bantul" against "Beauty Center Bantul"). A BranchResolver maps sheet
// labels onto canonical names through an explicit synonym table, and a
// CategoryClassifier groups canonical names into the two reporting
// categories by substring rules.
//
// Both tables are data, not code. A default BranchTable is embedded in the
// binary and can be replaced with a YAML file:
//
//	table, err := matcher.LoadTableFromFile("branches.yaml")
//	resolver := matcher.NewBranchResolver(table.Synonyms, matcher.StrategyExact)
//	classifier := matcher.NewCategoryClassifier(table.Categories)
//
//	canonical := resolver.Resolve("bantul")     // "Beauty Center Bantul"
//	category := classifier.Classify(canonical)  // models.CategoryA
package matcher

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed branches.yaml
var embeddedTable []byte

// ResolutionStrategy selects how sheet labels are looked up in the synonym table.
type ResolutionStrategy int

const (
	// StrategyExact requires the label to equal a table key byte for byte.
	// A label with a stray trailing space is a different branch unless the
	// table lists that variant.
	StrategyExact ResolutionStrategy = iota

	// StrategyNormalized falls back to a second lookup on a normalized key
	// (NFC, trimmed, inner whitespace collapsed, case-folded) when the exact
	// lookup misses.
	StrategyNormalized
)

// String returns the string representation of ResolutionStrategy
func (s ResolutionStrategy) String() string {
	switch s {
	case StrategyExact:
		return "exact"
	case StrategyNormalized:
		return "normalized"
	default:
		return "unknown"
	}
}

// ParseResolutionStrategy parses the --resolution flag value
func ParseResolutionStrategy(s string) (ResolutionStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exact":
		return StrategyExact, nil
	case "normalized":
		return StrategyNormalized, nil
	default:
		return StrategyExact, fmt.Errorf("invalid resolution strategy %q (must be 'exact' or 'normalized')", s)
	}
}

// SynonymTable maps a raw sheet label to its canonical branch name.
type SynonymTable map[string]string

// CategoryRule is one reporting category: a display name and the
// substrings that place a canonical branch into it.
type CategoryRule struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
}

// CategoryRules configures the CategoryClassifier.
type CategoryRules struct {
	CategoryA CategoryRule `yaml:"category_a"`
	CategoryB CategoryRule `yaml:"category_b"`
}

// DefaultCategoryRules returns the rules shipped in the embedded table.
func DefaultCategoryRules() CategoryRules {
	return CategoryRules{
		CategoryA: CategoryRule{
			Name:     "Beauty Center & Rumah Cantik",
			Patterns: []string{"Beauty Center", "Rumah Cantik", "Rumah cantik"},
		},
		CategoryB: CategoryRule{
			Name:     "Klinik",
			Patterns: []string{"Klinik", "Clinic", "Cinic"},
		},
	}
}

// Validate checks both categories have a name and at least one non-blank pattern
func (r CategoryRules) Validate() error {
	for key, rule := range map[string]CategoryRule{"category_a": r.CategoryA, "category_b": r.CategoryB} {
		if strings.TrimSpace(rule.Name) == "" {
			return fmt.Errorf("%s: name cannot be empty", key)
		}
		if len(rule.Patterns) == 0 {
			return fmt.Errorf("%s: at least one pattern is required", key)
		}
		for i, pattern := range rule.Patterns {
			if strings.TrimSpace(pattern) == "" {
				return fmt.Errorf("%s: pattern %d cannot be empty", key, i)
			}
		}
	}
	return nil
}

// BranchTable is the top-level YAML structure of a branches file.
type BranchTable struct {
	Synonyms   SynonymTable  `yaml:"synonyms"`
	Categories CategoryRules `yaml:"categories"`
}

// Validate checks the table is usable
func (t *BranchTable) Validate() error {
	for label, canonical := range t.Synonyms {
		if label == "" {
			return fmt.Errorf("synonym with empty label maps to %q", canonical)
		}
		if strings.TrimSpace(canonical) == "" {
			return fmt.Errorf("synonym %q maps to an empty canonical name", label)
		}
	}
	if err := t.Categories.Validate(); err != nil {
		return fmt.Errorf("invalid categories: %w", err)
	}
	return nil
}

// ParseTable decodes and validates a branches YAML document. A document
// without a categories section gets the default rules.
func ParseTable(data []byte) (*BranchTable, error) {
	var table BranchTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse branch table YAML: %w", err)
	}

	if table.Synonyms == nil {
		table.Synonyms = make(SynonymTable)
	}
	if len(table.Categories.CategoryA.Patterns) == 0 && len(table.Categories.CategoryB.Patterns) == 0 {
		table.Categories = DefaultCategoryRules()
	}

	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &table, nil
}

// LoadEmbeddedTable loads the branch table compiled into the binary
func LoadEmbeddedTable() (*BranchTable, error) {
	table, err := ParseTable(embeddedTable)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded branch table: %w", err)
	}
	return table, nil
}

// LoadTableFromFile loads a branch table from path
func LoadTableFromFile(path string) (*BranchTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read branch table: %w", err)
	}
	table, err := ParseTable(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load branch table from %q: %w", path, err)
	}
	return table, nil
}
