package index

import (
	"sync/atomic"

	"github.com/ZanzyTHEbar/streammash/smash/common"
	"github.com/ZanzyTHEbar/streammash/smash/sketch"

	"github.com/pkg/errors"
)

// Owner identifies the reference k-mer slot that produced an index key.
type Owner struct {
	Sketch uint32
	Slot   uint32
}

// PrefixIndex maps reference k-mers to their owners and answers prefix
// queries. Implementations are immutable after Build, so PrefixMatch is safe
// for concurrent use without locking.
type PrefixIndex interface {
	// PrefixMatch returns every owner whose k-mer starts with prefix. The
	// result is unordered and nil when nothing matches.
	PrefixMatch(prefix string) []Owner
	// Len is the number of distinct k-mers stored.
	Len() int
	// Owners is the number of (sketch, slot) pairs stored.
	Owners() int
	Stats() Stats
}

// Backend selects the trie implementation.
type Backend string

const (
	BackendRadix          Backend = "radix"
	BackendImmutableRadix Backend = "iradix"
)

// Stats tracks lookup counters for an index.
type Stats struct {
	Keys          int64
	Owners        int64
	PrefixLookups int64
	Hits          int64
	OwnersMatched int64
}

type stats struct {
	keys          int64
	owners        int64
	prefixLookups atomic.Int64
	hits          atomic.Int64
	ownersMatched atomic.Int64
}

func (s *stats) record(matched int) {
	s.prefixLookups.Add(1)
	if matched > 0 {
		s.hits.Add(1)
		s.ownersMatched.Add(int64(matched))
	}
}

func (s *stats) snapshot() Stats {
	return Stats{
		Keys:          s.keys,
		Owners:        s.owners,
		PrefixLookups: s.prefixLookups.Load(),
		Hits:          s.hits.Load(),
		OwnersMatched: s.ownersMatched.Load(),
	}
}

// Build indexes every k-mer of every sketch under its full, untruncated
// sequence. Shorter query windows reach the same keys through PrefixMatch, so
// the k-size list only needs validating here.
func Build(sketches []sketch.ReferenceSketch, kSizes []int, backend Backend) (PrefixIndex, error) {
	if err := common.NewValidationUtils().ValidateKSizes(kSizes); err != nil {
		return nil, err
	}

	grouped := groupOwners(sketches)

	switch backend {
	case BackendRadix, "":
		return newRadixIndex(grouped), nil
	case BackendImmutableRadix:
		return newImmutableIndex(grouped), nil
	default:
		return nil, errors.Wrapf(common.ErrInvalidConfig, "unknown index backend %q", backend)
	}
}

// groupOwners collects the owners of each distinct k-mer. Identical k-mers in
// different sketches or slots share one key.
func groupOwners(sketches []sketch.ReferenceSketch) map[string][]Owner {
	grouped := make(map[string][]Owner)
	for i, s := range sketches {
		for j, kmer := range s.Kmers {
			grouped[kmer] = append(grouped[kmer], Owner{Sketch: uint32(i), Slot: uint32(j)})
		}
	}
	return grouped
}

func countOwners(grouped map[string][]Owner) int64 {
	var n int64
	for _, owners := range grouped {
		n += int64(len(owners))
	}
	return n
}
