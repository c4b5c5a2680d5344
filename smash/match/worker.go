package match

import (
	"context"

	"github.com/ZanzyTHEbar/streammash/smash/common"
	"github.com/ZanzyTHEbar/streammash/smash/counts"
	"github.com/ZanzyTHEbar/streammash/smash/filter"
	"github.com/ZanzyTHEbar/streammash/smash/index"

	"github.com/pkg/errors"
)

// Policy decides what happens to a candidate once a window has matched it.
type Policy string

const (
	// PolicyFirst claims the candidate on its first match, so each distinct
	// window is looked up at most once per run.
	PolicyFirst Policy = "first"
	// PolicyEvery never mutates the filter and counts every occurrence.
	PolicyEvery Policy = "every"
)

// ParsePolicy maps a config value onto a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyFirst, "":
		return PolicyFirst, nil
	case PolicyEvery:
		return PolicyEvery, nil
	default:
		return "", errors.Wrapf(common.ErrInvalidConfig, "unknown dedup policy %q", s)
	}
}

// WindowCount is the number of k-length windows in a sequence of length n.
func WindowCount(n, k int) int {
	if k <= 0 || n < k {
		return 0
	}
	return n - k + 1
}

// Windows returns every contiguous k-length substring of seq, in order.
func Windows(seq string, k int) []string {
	n := WindowCount(len(seq), k)
	if n == 0 {
		return nil
	}
	out := make([]string, n)
	for i := range out {
		out[i] = seq[i : i+k]
	}
	return out
}

// Worker scans query sequences against the shared index, filter and matrix.
// Workers hold no state of their own beyond local counters, so any number of
// them may share the same structures.
type Worker struct {
	index   index.PrefixIndex
	filter  *filter.CandidateFilter
	matrix  *counts.Matrix
	kSizes  []int
	policy  Policy
	metrics *MetricsCollector
}

// NewWorker wires a worker to shared state. metrics may be nil.
func NewWorker(idx index.PrefixIndex, f *filter.CandidateFilter, m *counts.Matrix, kSizes []int, policy Policy, metrics *MetricsCollector) *Worker {
	return &Worker{
		index:   idx,
		filter:  f,
		matrix:  m,
		kSizes:  kSizes,
		policy:  policy,
		metrics: metrics,
	}
}

// ProcessSequence marks every reference slot that has a window of seq as a
// prefix, once per configured k-size. Non-nucleotide characters are not
// special; windows containing them simply find nothing.
func (w *Worker) ProcessSequence(seq string) {
	var windows, hits, lookups, marks int64

	for bucket, k := range w.kSizes {
		n := WindowCount(len(seq), k)
		windows += int64(n)
		for i := 0; i < n; i++ {
			window := seq[i : i+k]

			if w.policy == PolicyEvery {
				if !w.filter.Contains(window) {
					continue
				}
			} else if !w.filter.Claim(window) {
				continue
			}
			hits++

			lookups++
			for _, owner := range w.index.PrefixMatch(window) {
				w.matrix.Mark(int(owner.Sketch), int(owner.Slot), bucket)
				marks++
			}
		}
	}

	if w.metrics != nil {
		w.metrics.addSequence(windows, hits, lookups, marks)
	}
}

// Run consumes the queue until it is closed and drained, or ctx is done.
func (w *Worker) Run(ctx context.Context, queue <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case seq, ok := <-queue:
			if !ok {
				return nil
			}
			w.ProcessSequence(seq)
		}
	}
}
