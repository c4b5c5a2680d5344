package match

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/streammash/smash/common"
	"github.com/ZanzyTHEbar/streammash/smash/config"
	"github.com/ZanzyTHEbar/streammash/smash/dispatch"
	"github.com/ZanzyTHEbar/streammash/smash/index"
	"github.com/ZanzyTHEbar/streammash/smash/report"
	"github.com/ZanzyTHEbar/streammash/smash/sketch"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioSketches() []sketch.ReferenceSketch {
	return []sketch.ReferenceSketch{
		{InputFileName: "A", KSize: 10, Kmers: []string{"ACGTACGTAC"}},
		{InputFileName: "B", KSize: 10, Kmers: []string{"TTTTTTTTTT"}},
	}
}

const alphabet = "ACGT"

func randomSeq(r *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(b)
}

func randomSketches(r *rand.Rand, numSketches, numHashes, ksize int) []sketch.ReferenceSketch {
	out := make([]sketch.ReferenceSketch, numSketches)
	for i := range out {
		out[i] = sketch.ReferenceSketch{
			InputFileName: "ref" + string(rune('A'+i)) + ".fa",
			KSize:         ksize,
		}
		for j := 0; j < numHashes; j++ {
			out[i].Kmers = append(out[i].Kmers, randomSeq(r, ksize))
		}
	}
	return out
}

// bruteForce marks a slot at k when any window of any query equals the first
// k bases of the slot's k-mer.
func bruteForce(sketches []sketch.ReferenceSketch, kSizes []int, queries []string) map[string][]int {
	out := make(map[string][]int)
	for _, s := range sketches {
		row := make([]int, len(kSizes))
		for b, k := range kSizes {
			seen := make(map[string]bool)
			for _, q := range queries {
				for _, w := range Windows(q, k) {
					seen[w] = true
				}
			}
			for _, kmer := range s.Kmers {
				if seen[kmer[:k]] {
					row[b]++
				}
			}
		}
		out[s.Name()] = row
	}
	return out
}

func tableCounts(t *report.Table) map[string][]int {
	out := make(map[string][]int)
	for _, r := range t.Rows {
		out[r.Name] = r.Counts
	}
	return out
}

func newTestEngine(t *testing.T, opts Options, sketches []sketch.ReferenceSketch) *Engine {
	t.Helper()
	e, err := NewEngine(opts, sketches, zerolog.Nop())
	require.NoError(t, err)
	return e
}

func TestEngineScenario(t *testing.T) {
	for _, backend := range []index.Backend{index.BackendRadix, index.BackendImmutableRadix} {
		for _, policy := range []Policy{PolicyFirst, PolicyEvery} {
			t.Run(string(backend)+"/"+string(policy), func(t *testing.T) {
				e := newTestEngine(t, Options{
					KSizes:       []int{5},
					NumWorkers:   4,
					Policy:       policy,
					IndexBackend: backend,
				}, scenarioSketches())

				table, err := e.Run(context.Background(), dispatch.NewSliceSource("ACGTACGTACGT"))
				require.NoError(t, err)

				a, ok := table.Count("A", 5)
				require.True(t, ok)
				assert.GreaterOrEqual(t, a, 1)
				b, ok := table.Count("B", 5)
				require.True(t, ok)
				assert.Equal(t, 0, b)

				filtered, err := report.FilterAndSort(table, 5, 0)
				require.NoError(t, err)
				require.Len(t, filtered.Rows, 1)
				assert.Equal(t, "A", filtered.Rows[0].Name)
			})
		}
	}
}

func TestEngineMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	sketches := randomSketches(r, 6, 40, 12)
	kSizes := []int{4, 8, 12}

	var queries []string
	for i := 0; i < 200; i++ {
		queries = append(queries, randomSeq(r, 5+r.Intn(60)))
	}
	// Plant some exact hits so the high k column is not empty.
	for i := 0; i < 10; i++ {
		s := sketches[r.Intn(len(sketches))]
		queries = append(queries, randomSeq(r, 3)+s.Kmers[r.Intn(len(s.Kmers))]+randomSeq(r, 3))
	}
	want := bruteForce(sketches, kSizes, queries)

	for _, policy := range []Policy{PolicyFirst, PolicyEvery} {
		for _, workers := range []int{1, 3, 8} {
			e := newTestEngine(t, Options{
				KSizes:                 kSizes,
				NumWorkers:             workers,
				QueueCapacity:          4,
				Policy:                 policy,
				BloomFalsePositiveRate: 0.01,
			}, sketches)

			table, err := e.Run(context.Background(), dispatch.NewSliceSource(queries...))
			require.NoError(t, err)
			assert.Equal(t, want, tableCounts(table), "policy=%s workers=%d", policy, workers)
		}
	}
}

func TestEngineOrderIndependence(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	sketches := randomSketches(r, 4, 25, 10)
	var queries []string
	for i := 0; i < 150; i++ {
		queries = append(queries, randomSeq(r, 30))
	}

	e := newTestEngine(t, Options{KSizes: []int{5, 10}, NumWorkers: 6, QueueCapacity: 2}, sketches)
	base, err := e.Run(context.Background(), dispatch.NewSliceSource(queries...))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		shuffled := append([]string(nil), queries...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		table, err := e.Run(context.Background(), dispatch.NewSliceSource(shuffled...))
		require.NoError(t, err)
		assert.Equal(t, tableCounts(base), tableCounts(table))
	}
}

func TestEngineRunsAreIndependent(t *testing.T) {
	e := newTestEngine(t, Options{KSizes: []int{5}, NumWorkers: 2}, scenarioSketches())

	first, err := e.Run(context.Background(), dispatch.NewSliceSource("ACGTACGTACGT"))
	require.NoError(t, err)
	second, err := e.Run(context.Background(), dispatch.NewSliceSource("TTTTTTT"))
	require.NoError(t, err)

	assert.Equal(t, map[string][]int{"A": {1}, "B": {0}}, tableCounts(first))
	assert.Equal(t, map[string][]int{"A": {0}, "B": {1}}, tableCounts(second))
}

func TestEngineMetrics(t *testing.T) {
	e := newTestEngine(t, Options{KSizes: []int{5, 10}, NumWorkers: 3}, scenarioSketches())

	_, err := e.Run(context.Background(), dispatch.NewSliceSource("ACGTACGTACGT", "TTTTTTTTTTTT", "GG"))
	require.NoError(t, err)

	m := e.Metrics()
	assert.NotEmpty(t, m.RunID)
	assert.Equal(t, 3, m.Workers)
	assert.Equal(t, int64(3), m.Sequences)
	assert.Equal(t, int64(2*(8+3)), m.Windows)
	assert.Equal(t, int64(4), m.FilterHits)
	assert.Equal(t, m.FilterHits, m.PrefixLookups)
	assert.Equal(t, int64(4), m.Marks)
	assert.Equal(t, int64(1), m.StageCounts["aggregate"])
	assert.Positive(t, m.Duration)
}

func TestEngineConcurrentRunsKeepOwnMetrics(t *testing.T) {
	e := newTestEngine(t, Options{KSizes: []int{5, 10}, NumWorkers: 2, Policy: PolicyEvery}, scenarioSketches())

	var queries []string
	for i := 0; i < 200; i++ {
		queries = append(queries, "ACGTACGTACGT", "TTTTTTTTTTTT")
	}
	// Per pair: 2+1 lookups for the first query and 8+3 for the second.
	const wantLookups = 200 * 14

	const runs = 6
	var wg sync.WaitGroup
	errs := make(chan error, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Run(context.Background(), dispatch.NewSliceSource(queries...))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	m := e.Metrics()
	assert.Equal(t, int64(len(queries)), m.Sequences)
	assert.Equal(t, int64(wantLookups), m.FilterHits)
	assert.Equal(t, int64(wantLookups), m.PrefixLookups, "lookups of overlapping runs are not mixed")
	assert.Equal(t, int64(runs*wantLookups), e.index.Stats().PrefixLookups)
}

func TestEngineRunWithCancelledContext(t *testing.T) {
	e := newTestEngine(t, Options{KSizes: []int{5}, NumWorkers: 2}, scenarioSketches())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	table, err := e.Run(ctx, dispatch.NewSliceSource("ACGTACGTACGT"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, table)
	assert.Empty(t, e.Metrics().RunID, "no run is started")
	assert.Zero(t, e.index.Stats().PrefixLookups)
}

type countingReporter struct{ calls atomic.Int64 }

func (c *countingReporter) Report(int64, time.Duration) { c.calls.Add(1) }

func TestEngineProgressReporter(t *testing.T) {
	rep := &countingReporter{}
	e := newTestEngine(t, Options{
		KSizes:           []int{5},
		NumWorkers:       2,
		ProgressInterval: 10,
		Reporter:         rep,
	}, scenarioSketches())

	queries := make([]string, 35)
	for i := range queries {
		queries[i] = "ACGTACGTACGT"
	}
	_, err := e.Run(context.Background(), dispatch.NewSliceSource(queries...))
	require.NoError(t, err)
	assert.Equal(t, int64(3), rep.calls.Load())
}

type endlessSource struct {
	once    sync.Once
	started chan struct{}
}

func (s *endlessSource) Next() (string, error) {
	s.once.Do(func() { close(s.started) })
	return "ACGTACGTACGT", nil
}

func TestEngineCancellation(t *testing.T) {
	e := newTestEngine(t, Options{KSizes: []int{5}, NumWorkers: 2}, scenarioSketches())

	ctx, cancel := context.WithCancel(context.Background())
	src := &endlessSource{started: make(chan struct{})}
	go func() {
		<-src.started
		cancel()
	}()

	table, err := e.Run(ctx, src)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, table)
}

type brokenSource struct{}

func (brokenSource) Next() (string, error) { return "", errors.New("truncated gzip stream") }

func TestEngineSourceError(t *testing.T) {
	e := newTestEngine(t, Options{KSizes: []int{5}, NumWorkers: 2}, scenarioSketches())

	table, err := e.Run(context.Background(), brokenSource{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated gzip stream")
	assert.Nil(t, table)
}

func TestNewEngineRejectsBadInput(t *testing.T) {
	_, err := NewEngine(Options{KSizes: []int{11}}, scenarioSketches(), zerolog.Nop())
	assert.ErrorIs(t, err, common.ErrInvalidKSize, "k larger than the sketch ksize")

	_, err = NewEngine(Options{KSizes: []int{5}}, nil, zerolog.Nop())
	assert.ErrorIs(t, err, common.ErrNoSketches)

	_, err = NewEngine(Options{KSizes: []int{5}, Policy: "sometimes"}, scenarioSketches(), zerolog.Nop())
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	_, err = NewEngine(Options{KSizes: []int{5}, IndexBackend: "btree"}, scenarioSketches(), zerolog.Nop())
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	mixed := append(scenarioSketches(), sketch.ReferenceSketch{InputFileName: "C", KSize: 8, Kmers: []string{"ACGTACGT"}})
	_, err = NewEngine(Options{KSizes: []int{5}}, mixed, zerolog.Nop())
	assert.ErrorIs(t, err, common.ErrInconsistentKSize)
}

func TestNewEngineMaxSketches(t *testing.T) {
	e := newTestEngine(t, Options{KSizes: []int{5}, MaxSketches: 1}, scenarioSketches())
	assert.Equal(t, 1, e.Shape().NumSketches)

	table, err := e.Run(context.Background(), dispatch.NewSliceSource("TTTTTTTTTT"))
	require.NoError(t, err)
	assert.Equal(t, map[string][]int{"A": {0}}, tableCounts(table))
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := OptionsFromConfig(config.MatchConfig{
		KSizes:       []int{7},
		NumWorkers:   2,
		DedupPolicy:  "every",
		IndexBackend: "iradix",
	})
	require.NoError(t, err)
	assert.Equal(t, PolicyEvery, opts.Policy)
	assert.Equal(t, index.BackendImmutableRadix, opts.IndexBackend)
	assert.Equal(t, []int{7}, opts.KSizes)

	_, err = OptionsFromConfig(config.MatchConfig{DedupPolicy: "never"})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}
