package matcher

import (
	"sort"
	"sync"
)

// BranchResolver maps raw settlement labels onto canonical branch names.
// A label with no table entry resolves to itself; that is never an error,
// but every such miss is counted so callers can surface table gaps.
type BranchResolver struct {
	synonyms SynonymTable
	strategy ResolutionStrategy
	index    *normalizedIndex

	mutex  sync.Mutex
	misses map[string]int
}

// NewBranchResolver creates a resolver over synonyms using strategy
func NewBranchResolver(synonyms SynonymTable, strategy ResolutionStrategy) *BranchResolver {
	table := make(SynonymTable, len(synonyms))
	for label, canonical := range synonyms {
		table[label] = canonical
	}

	resolver := &BranchResolver{
		synonyms: table,
		strategy: strategy,
		misses:   make(map[string]int),
	}
	if strategy == StrategyNormalized {
		resolver.index = newNormalizedIndex(table)
	}
	return resolver
}

// Resolve returns the canonical branch for label.
func (r *BranchResolver) Resolve(label string) string {
	if canonical, ok := r.synonyms[label]; ok {
		return canonical
	}

	if r.index != nil {
		if canonical, ok := r.index.lookup(label); ok {
			return canonical
		}
	}

	r.mutex.Lock()
	r.misses[label]++
	r.mutex.Unlock()
	return label
}

// Strategy returns the resolution strategy in use
func (r *BranchResolver) Strategy() ResolutionStrategy {
	return r.strategy
}

// Misses returns the labels that fell back to themselves, with hit counts.
func (r *BranchResolver) Misses() map[string]int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	out := make(map[string]int, len(r.misses))
	for label, count := range r.misses {
		out[label] = count
	}
	return out
}

// MissedLabels returns the unresolved labels in ascending order
func (r *BranchResolver) MissedLabels() []string {
	misses := r.Misses()
	labels := make([]string, 0, len(misses))
	for label := range misses {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Ambiguous returns normalized keys that more than one canonical name
// claimed. Empty under StrategyExact.
func (r *BranchResolver) Ambiguous() []string {
	if r.index == nil {
		return nil
	}
	keys := make([]string, 0, len(r.index.collisions))
	for key := range r.index.collisions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
