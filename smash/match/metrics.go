package match

import (
	"sync"
	"sync/atomic"
	"time"
)

// RunMetrics is a snapshot of the counters of one engine run.
type RunMetrics struct {
	RunID         string
	Workers       int
	Sequences     int64
	Windows       int64
	FilterHits    int64
	PrefixLookups int64
	Marks         int64
	Duration      time.Duration
	LastUpdated   time.Time
	StageCounts   map[string]int64
}

// MetricsCollector accumulates the counters of a single run from many
// workers. Workers flush once per sequence, not per window.
type MetricsCollector struct {
	mu        sync.Mutex
	runID     string
	workers   int
	started   time.Time
	sequences atomic.Int64
	windows   atomic.Int64
	hits      atomic.Int64
	lookups   atomic.Int64
	marks     atomic.Int64
	stages    map[string]int64
}

// NewMetricsCollector creates a collector for the run identified by runID.
func NewMetricsCollector(runID string, workers int) *MetricsCollector {
	return &MetricsCollector{
		runID:   runID,
		workers: workers,
		started: time.Now(),
		stages:  make(map[string]int64),
	}
}

func (mc *MetricsCollector) addSequence(windows, hits, lookups, marks int64) {
	mc.sequences.Add(1)
	mc.windows.Add(windows)
	mc.hits.Add(hits)
	mc.lookups.Add(lookups)
	mc.marks.Add(marks)
}

// IncrementStage counts a named engine stage (build, dispatch, aggregate).
func (mc *MetricsCollector) IncrementStage(stage string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.stages[stage]++
}

// Finish freezes the counters into a snapshot.
func (mc *MetricsCollector) Finish() *RunMetrics {
	mc.mu.Lock()
	stages := make(map[string]int64, len(mc.stages))
	for k, v := range mc.stages {
		stages[k] = v
	}
	mc.mu.Unlock()

	return &RunMetrics{
		RunID:         mc.runID,
		Workers:       mc.workers,
		Sequences:     mc.sequences.Load(),
		Windows:       mc.windows.Load(),
		FilterHits:    mc.hits.Load(),
		PrefixLookups: mc.lookups.Load(),
		Marks:         mc.marks.Load(),
		Duration:      time.Since(mc.started),
		LastUpdated:   time.Now(),
		StageCounts:   stages,
	}
}
