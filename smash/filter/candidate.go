package filter

import (
	"math/bits"
	"sync"

	internal "github.com/ZanzyTHEbar/streammash/smash"
	"github.com/ZanzyTHEbar/streammash/smash/sketch"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/zeebo/xxh3"
)

// Options configures a CandidateFilter.
type Options struct {
	// Shards is rounded up to a power of two. Zero uses the default.
	Shards int
	// BloomFalsePositiveRate enables the Bloom pre-check when > 0.
	BloomFalsePositiveRate float64
}

type shard struct {
	mu  sync.Mutex
	set map[string]struct{}
}

// CandidateFilter is the fast-reject set of every truncated reference k-mer.
// Membership is exact; the optional Bloom filter only short-circuits
// definite misses before a shard lock is taken. The Bloom filter is written
// during Build only and is read-only afterwards.
type CandidateFilter struct {
	shards []shard
	mask   uint64
	bloom  *bloom.BloomFilter
}

// Build inserts kmer[:k] for every reference k-mer and every k-size not
// longer than the k-mer.
func Build(sketches []sketch.ReferenceSketch, kSizes []int, opts Options) *CandidateFilter {
	n := opts.Shards
	if n <= 0 {
		n = internal.DefaultFilterShards
	}
	n = 1 << bits.Len(uint(n-1))

	f := &CandidateFilter{
		shards: make([]shard, n),
		mask:   uint64(n - 1),
	}
	for i := range f.shards {
		f.shards[i].set = make(map[string]struct{})
	}

	var expected uint
	for _, s := range sketches {
		expected += uint(len(s.Kmers) * len(kSizes))
	}
	if opts.BloomFalsePositiveRate > 0 && expected > 0 {
		f.bloom = bloom.NewWithEstimates(expected, opts.BloomFalsePositiveRate)
	}

	for _, s := range sketches {
		for _, kmer := range s.Kmers {
			for _, k := range kSizes {
				if k <= 0 || k > len(kmer) {
					continue
				}
				f.insert(kmer[:k])
			}
		}
	}

	return f
}

func (f *CandidateFilter) shardFor(candidate string) *shard {
	return &f.shards[xxh3.HashString(candidate)&f.mask]
}

func (f *CandidateFilter) insert(candidate string) {
	if f.bloom != nil {
		f.bloom.AddString(candidate)
	}
	sh := f.shardFor(candidate)
	sh.mu.Lock()
	sh.set[candidate] = struct{}{}
	sh.mu.Unlock()
}

func (f *CandidateFilter) rejectedByBloom(candidate string) bool {
	return f.bloom != nil && !f.bloom.TestString(candidate)
}

// Contains reports whether candidate is still in the set.
func (f *CandidateFilter) Contains(candidate string) bool {
	if f.rejectedByBloom(candidate) {
		return false
	}
	sh := f.shardFor(candidate)
	sh.mu.Lock()
	_, ok := sh.set[candidate]
	sh.mu.Unlock()
	return ok
}

// Remove deletes candidate. Removing an absent entry is a no-op.
func (f *CandidateFilter) Remove(candidate string) {
	sh := f.shardFor(candidate)
	sh.mu.Lock()
	delete(sh.set, candidate)
	sh.mu.Unlock()
}

// Claim removes candidate and reports whether it was present. Exactly one of
// any number of concurrent callers claiming the same string gets true.
func (f *CandidateFilter) Claim(candidate string) bool {
	if f.rejectedByBloom(candidate) {
		return false
	}
	sh := f.shardFor(candidate)
	sh.mu.Lock()
	_, ok := sh.set[candidate]
	if ok {
		delete(sh.set, candidate)
	}
	sh.mu.Unlock()
	return ok
}

// Len is the number of entries remaining.
func (f *CandidateFilter) Len() int {
	total := 0
	for i := range f.shards {
		sh := &f.shards[i]
		sh.mu.Lock()
		total += len(sh.set)
		sh.mu.Unlock()
	}
	return total
}

// NumShards is the effective shard count.
func (f *CandidateFilter) NumShards() int { return len(f.shards) }

// HasBloom reports whether the Bloom pre-check is active.
func (f *CandidateFilter) HasBloom() bool { return f.bloom != nil }
