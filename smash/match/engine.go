// Package match runs query sequences against a set of reference sketches
// and counts, per sketch and k-mer size, how many sketch k-mers were hit.
package match

import (
	"context"
	"runtime"
	"sync"
	"time"

	internal "github.com/ZanzyTHEbar/streammash/smash"
	"github.com/ZanzyTHEbar/streammash/smash/common"
	"github.com/ZanzyTHEbar/streammash/smash/config"
	"github.com/ZanzyTHEbar/streammash/smash/counts"
	"github.com/ZanzyTHEbar/streammash/smash/dispatch"
	"github.com/ZanzyTHEbar/streammash/smash/filter"
	"github.com/ZanzyTHEbar/streammash/smash/index"
	"github.com/ZanzyTHEbar/streammash/smash/report"
	"github.com/ZanzyTHEbar/streammash/smash/sketch"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// Options configures an Engine. Zero values fall back to the package defaults.
type Options struct {
	KSizes                 []int
	NumWorkers             int
	QueueCapacity          int
	MaxSketches            int
	Policy                 Policy
	IndexBackend           index.Backend
	FilterShards           int
	BloomFalsePositiveRate float64
	ProgressInterval       int
	// Reporter overrides the default log-based progress reporter.
	Reporter dispatch.ProgressReporter
}

// OptionsFromConfig maps the match section of the config file onto Options.
func OptionsFromConfig(c config.MatchConfig) (Options, error) {
	policy, err := ParsePolicy(c.DedupPolicy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		KSizes:                 c.KSizes,
		NumWorkers:             c.NumWorkers,
		QueueCapacity:          c.QueueCapacity,
		MaxSketches:            c.MaxSketches,
		Policy:                 policy,
		IndexBackend:           index.Backend(c.IndexBackend),
		FilterShards:           c.FilterShards,
		BloomFalsePositiveRate: c.BloomFalsePositiveRate,
		ProgressInterval:       c.ProgressInterval,
	}, nil
}

func (o *Options) applyDefaults() {
	if len(o.KSizes) == 0 {
		o.KSizes = append([]int(nil), internal.DefaultKSizes...)
	}
	if o.NumWorkers < 1 {
		o.NumWorkers = runtime.NumCPU()
	}
	if o.QueueCapacity < 1 {
		o.QueueCapacity = internal.DefaultQueueCapacity
	}
	if o.Policy == "" {
		o.Policy = Policy(internal.DefaultDedupPolicy)
	}
	if o.IndexBackend == "" {
		o.IndexBackend = index.Backend(internal.DefaultIndexBackend)
	}
}

// Engine owns the immutable reference state shared by every run: the
// validated sketches and their prefix index. Each Run builds its own filter
// and count matrix, so runs are independent.
type Engine struct {
	opts     Options
	sketches []sketch.ReferenceSketch
	shape    sketch.Shape
	index    index.PrefixIndex
	logger   zerolog.Logger

	mu      sync.Mutex
	metrics RunMetrics
}

// NewEngine validates the sketches against the options and builds the index.
// All configuration and data errors surface here, before any goroutine runs.
func NewEngine(opts Options, sketches []sketch.ReferenceSketch, logger zerolog.Logger) (*Engine, error) {
	opts.applyDefaults()
	if _, err := ParsePolicy(string(opts.Policy)); err != nil {
		return nil, err
	}

	sketches = sketch.Limit(sketches, opts.MaxSketches)
	shape, err := sketch.Validate(sketches, opts.KSizes)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	idx, err := index.Build(sketches, opts.KSizes, opts.IndexBackend)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Int("sketches", shape.NumSketches).
		Int("num_hashes", shape.NumHashes).
		Int("ksize", shape.KSize).
		Ints("k_sizes", opts.KSizes).
		Int("index_keys", idx.Len()).
		Str("backend", string(opts.IndexBackend)).
		Dur("build_time", time.Since(start)).
		Msg("Reference index built")

	return &Engine{
		opts:     opts,
		sketches: sketches,
		shape:    shape,
		index:    idx,
		logger:   logger,
	}, nil
}

// Shape describes the loaded reference set.
func (e *Engine) Shape() sketch.Shape { return e.shape }

// Run streams src through one dispatcher and NumWorkers workers, waits for
// all of them, and aggregates the matrix. On cancellation or a source error
// it returns the error and no table.
func (e *Engine) Run(ctx context.Context, src dispatch.SequenceSource) (*report.Table, error) {
	if err := common.NewValidationUtils().ValidateContextCancellation(ctx); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	log := e.logger.With().Str("run_id", runID).Logger()
	mc := NewMetricsCollector(runID, e.opts.NumWorkers)

	f := filter.Build(e.sketches, e.opts.KSizes, filter.Options{
		Shards:                 e.opts.FilterShards,
		BloomFalsePositiveRate: e.opts.BloomFalsePositiveRate,
	})
	m := counts.New(e.shape.NumSketches, e.shape.NumHashes, len(e.opts.KSizes))
	mc.IncrementStage("build")

	log.Debug().
		Int("filter_entries", f.Len()).
		Int("filter_shards", f.NumShards()).
		Bool("bloom", f.HasBloom()).
		Int("workers", e.opts.NumWorkers).
		Str("policy", string(e.opts.Policy)).
		Msg("Run started")

	dopts := []dispatch.Option{
		dispatch.WithLogger(log),
		dispatch.WithProgressInterval(e.opts.ProgressInterval),
	}
	if e.opts.Reporter != nil {
		dopts = append(dopts, dispatch.WithReporter(e.opts.Reporter))
	}
	d := dispatch.New(e.opts.QueueCapacity, dopts...)

	p := pool.New().
		WithMaxGoroutines(e.opts.NumWorkers + 1).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()

	p.Go(func(ctx context.Context) error {
		return d.Run(ctx, src)
	})
	for i := 0; i < e.opts.NumWorkers; i++ {
		w := NewWorker(e.index, f, m, e.opts.KSizes, e.opts.Policy, mc)
		p.Go(func(ctx context.Context) error {
			return w.Run(ctx, d.Queue())
		})
	}
	mc.IncrementStage("dispatch")

	if err := p.Wait(); err != nil {
		snap := e.finish(mc)
		log.Warn().Err(err).
			Int64("sequences", snap.Sequences).
			Msg("Run aborted")
		return nil, err
	}

	table := report.Aggregate(m, e.sketches, e.opts.KSizes)
	mc.IncrementStage("aggregate")
	snap := e.finish(mc)

	log.Info().
		Int64("sequences", snap.Sequences).
		Int64("windows", snap.Windows).
		Int64("filter_hits", snap.FilterHits).
		Int64("marks", snap.Marks).
		Dur("duration", snap.Duration).
		Msg("Run finished")
	log.Debug().
		Int64("index_prefix_lookups_total", e.index.Stats().PrefixLookups).
		Int64("index_hits_total", e.index.Stats().Hits).
		Msg("Index counters")

	return table, nil
}

func (e *Engine) finish(mc *MetricsCollector) *RunMetrics {
	snap := mc.Finish()
	e.mu.Lock()
	e.metrics = *snap
	e.mu.Unlock()
	return snap
}

// Metrics returns the counters of the most recently finished run.
func (e *Engine) Metrics() RunMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}
