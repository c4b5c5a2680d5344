package index

import (
	"github.com/armon/go-radix"
)

// RadixIndex stores reference k-mers in a compressed trie (patricia tree), so
// a prefix query costs O(k) to reach the subtree plus the size of the subtree.
type RadixIndex struct {
	tree  *radix.Tree
	stats *stats
}

func newRadixIndex(grouped map[string][]Owner) *RadixIndex {
	tree := radix.New()
	for kmer, owners := range grouped {
		tree.Insert(kmer, owners)
	}
	return &RadixIndex{
		tree: tree,
		stats: &stats{
			keys:   int64(tree.Len()),
			owners: countOwners(grouped),
		},
	}
}

// PrefixMatch walks every key under prefix and collects its owners.
func (idx *RadixIndex) PrefixMatch(prefix string) []Owner {
	var results []Owner
	idx.tree.WalkPrefix(prefix, func(key string, value interface{}) bool {
		if owners, ok := value.([]Owner); ok {
			results = append(results, owners...)
		}
		return false // Continue walking
	})
	idx.stats.record(len(results))
	return results
}

func (idx *RadixIndex) Len() int { return idx.tree.Len() }

func (idx *RadixIndex) Owners() int { return int(idx.stats.owners) }

func (idx *RadixIndex) Stats() Stats { return idx.stats.snapshot() }
