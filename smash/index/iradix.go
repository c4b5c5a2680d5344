package index

import (
	iradix "github.com/hashicorp/go-immutable-radix"
)

// ImmutableIndex is the persistent-tree variant. The tree is built in a single
// transaction and never mutated afterwards.
type ImmutableIndex struct {
	tree  *iradix.Tree
	stats *stats
}

func newImmutableIndex(grouped map[string][]Owner) *ImmutableIndex {
	txn := iradix.New().Txn()
	for kmer, owners := range grouped {
		txn.Insert([]byte(kmer), owners)
	}
	tree := txn.Commit()

	return &ImmutableIndex{
		tree: tree,
		stats: &stats{
			keys:   int64(tree.Len()),
			owners: countOwners(grouped),
		},
	}
}

func (idx *ImmutableIndex) PrefixMatch(prefix string) []Owner {
	var results []Owner
	idx.tree.Root().WalkPrefix([]byte(prefix), func(_ []byte, value interface{}) bool {
		if owners, ok := value.([]Owner); ok {
			results = append(results, owners...)
		}
		return false
	})
	idx.stats.record(len(results))
	return results
}

func (idx *ImmutableIndex) Len() int { return idx.tree.Len() }

func (idx *ImmutableIndex) Owners() int { return int(idx.stats.owners) }

func (idx *ImmutableIndex) Stats() Stats { return idx.stats.snapshot() }
