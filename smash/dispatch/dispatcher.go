// Package dispatch feeds query sequences into the bounded work queue consumed
// by match workers.
package dispatch

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	internal "github.com/ZanzyTHEbar/streammash/smash"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ProgressReporter is called from the dispatch loop every interval records.
// Implementations must return quickly.
type ProgressReporter interface {
	Report(records int64, elapsed time.Duration)
}

// LogReporter writes progress lines through zerolog.
type LogReporter struct {
	Logger zerolog.Logger
}

func (r LogReporter) Report(records int64, elapsed time.Duration) {
	r.Logger.Info().
		Int64("records", records).
		Dur("elapsed", elapsed).
		Msgf("processed %s sequences", humanize.Comma(records))
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithProgressInterval sets how many records pass between progress reports.
// Zero or less disables reporting.
func WithProgressInterval(n int) Option {
	return func(d *Dispatcher) { d.interval = int64(n) }
}

// WithReporter replaces the default log reporter.
func WithReporter(r ProgressReporter) Option {
	return func(d *Dispatcher) { d.reporter = r }
}

// WithLogger sets the logger used by the default reporter and for the final
// summary.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// Dispatcher pushes every sequence of a source onto a bounded channel. Run
// closes the channel when it returns, which is the shutdown signal for every
// consumer.
type Dispatcher struct {
	queue    chan string
	interval int64
	reporter ProgressReporter
	logger   zerolog.Logger
	records  atomic.Int64
}

// New creates a dispatcher whose queue holds at most capacity sequences.
func New(capacity int, opts ...Option) *Dispatcher {
	if capacity < 1 {
		capacity = internal.DefaultQueueCapacity
	}
	d := &Dispatcher{
		queue:    make(chan string, capacity),
		interval: int64(internal.DefaultProgressInterval),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.reporter == nil {
		d.reporter = LogReporter{Logger: d.logger}
	}
	return d
}

// Queue is the receive side handed to workers.
func (d *Dispatcher) Queue() <-chan string {
	return d.queue
}

// Records is the number of sequences enqueued so far.
func (d *Dispatcher) Records() int64 {
	return d.records.Load()
}

// Run drains src into the queue, blocking while the queue is full. It must be
// called once.
func (d *Dispatcher) Run(ctx context.Context, src SequenceSource) error {
	defer close(d.queue)

	start := time.Now()
	for {
		seq, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "reading query source")
		}

		select {
		case d.queue <- seq:
		case <-ctx.Done():
			return ctx.Err()
		}

		n := d.records.Add(1)
		if d.interval > 0 && n%d.interval == 0 {
			d.reporter.Report(n, time.Since(start))
		}
	}

	d.logger.Debug().
		Int64("records", d.records.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("Dispatch finished")
	return nil
}
