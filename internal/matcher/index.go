package matcher

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// normalizedIndex is the secondary lookup used by StrategyNormalized.
type normalizedIndex struct {
	entries map[string]string
	// collisions holds normalized keys claimed by table labels that map to
	// different canonical names; those keys never resolve.
	collisions map[string][]string
}

func newNormalizedIndex(synonyms SynonymTable) *normalizedIndex {
	idx := &normalizedIndex{
		entries:    make(map[string]string, len(synonyms)),
		collisions: make(map[string][]string),
	}

	for label, canonical := range synonyms {
		key := NormalizeLabel(label)
		if key == "" {
			continue
		}
		if existing, ok := idx.entries[key]; ok && existing != canonical {
			idx.collisions[key] = append(idx.collisions[key], label)
			continue
		}
		idx.entries[key] = canonical
	}

	for key := range idx.collisions {
		delete(idx.entries, key)
	}
	return idx
}

func (idx *normalizedIndex) lookup(label string) (string, bool) {
	canonical, ok := idx.entries[NormalizeLabel(label)]
	return canonical, ok
}

// NormalizeLabel folds a branch label into its comparison key: Unicode NFC,
// surrounding whitespace removed, inner whitespace runs collapsed to one
// space, case-folded. "  Kota   Gede " and "kota gede" share a key.
func NormalizeLabel(label string) string {
	composed := norm.NFC.String(label)
	collapsed := strings.Join(strings.Fields(composed), " ")
	return cases.Fold().String(collapsed)
}
