package matcher

import (
	"strings"

	"settlement-reconciliation-service/internal/models"
)

// CategoryClassifier places canonical branch names into reporting categories.
type CategoryClassifier struct {
	rules CategoryRules
}

// NewCategoryClassifier creates a classifier from rules
func NewCategoryClassifier(rules CategoryRules) *CategoryClassifier {
	return &CategoryClassifier{rules: rules}
}

// DefaultCategoryClassifier uses DefaultCategoryRules
func DefaultCategoryClassifier() *CategoryClassifier {
	return NewCategoryClassifier(DefaultCategoryRules())
}

// Classify returns the category whose patterns occur in name. Category A
// wins when both match; a name matching neither is Unclassified.
func (c *CategoryClassifier) Classify(name string) models.BranchCategory {
	if containsAny(name, c.rules.CategoryA.Patterns) {
		return models.CategoryA
	}
	if containsAny(name, c.rules.CategoryB.Patterns) {
		return models.CategoryB
	}
	return models.Unclassified
}

// DisplayName returns the configured label for category.
func (c *CategoryClassifier) DisplayName(category models.BranchCategory) string {
	switch category {
	case models.CategoryA:
		return c.rules.CategoryA.Name
	case models.CategoryB:
		return c.rules.CategoryB.Name
	default:
		return "Unclassified"
	}
}

func containsAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern != "" && strings.Contains(name, pattern) {
			return true
		}
	}
	return false
}
