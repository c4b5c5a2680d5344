package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"slices"
	"time"

	"github.com/ZanzyTHEbar/streammash/smash/dispatch"
	"github.com/ZanzyTHEbar/streammash/smash/match"
	"github.com/ZanzyTHEbar/streammash/smash/report"
	"github.com/ZanzyTHEbar/streammash/smash/sketch"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// barReporter drives a spinner-style progress bar from dispatcher reports.
type barReporter struct {
	bar *progressbar.ProgressBar
}

func (b barReporter) Report(records int64, _ time.Duration) {
	_ = b.bar.Set64(records)
}

type runFlags struct {
	dsn       string
	refs      []string
	out       string
	kSizes    []int
	workers   int
	threshold int
	policy    string
	progress  bool
	all       bool
	summary   bool
}

func runCommand(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [flags] query.fq [query.fq ...]",
		Short: "Match query sequences against the reference sketches",
		Long: `Streams every record of the query files through the matcher and writes a
CSV table with one row per reference sketch and one column per k-mer size.
Rows are kept when their count at the largest k-mer size exceeds the match
threshold, ordered by that count.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.setup(cmd)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("kmer-sizes") {
				cfg.Match.KSizes = f.kSizes
			}
			if cmd.Flags().Changed("workers") {
				cfg.Match.NumWorkers = f.workers
			}
			if cmd.Flags().Changed("threshold") {
				cfg.Match.MatchThreshold = f.threshold
			}
			if cmd.Flags().Changed("policy") {
				cfg.Match.DedupPolicy = f.policy
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if f.dsn == "" {
				f.dsn = cfg.Store.DSN
			}

			opts, err := match.OptionsFromConfig(cfg.Match)
			if err != nil {
				return err
			}

			sketches, err := loadSketches(cmd.Context(), f, logger)
			if err != nil {
				return err
			}

			src, err := dispatch.NewFastxSource(args...)
			if err != nil {
				return err
			}
			defer src.Close()

			if f.progress {
				bar := progressbar.Default(-1, "matching")
				defer bar.Finish()
				opts.Reporter = barReporter{bar: bar}
				if opts.ProgressInterval > 1000 {
					opts.ProgressInterval = 1000
				}
			}

			engine, err := match.NewEngine(opts, sketches, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			table, err := engine.Run(ctx, src)
			if err != nil {
				return err
			}

			if !f.all {
				table, err = report.FilterAndSort(table, slices.Max(opts.KSizes), cfg.Match.MatchThreshold)
				if err != nil {
					return err
				}
			}

			if f.summary {
				for _, s := range table.Summary() {
					logger.Info().
						Int("k", s.KSize).
						Int("matched", s.Matched).
						Float64("mean_containment", s.Mean).
						Float64("stddev_containment", s.StdDev).
						Float64("max_containment", s.Max).
						Msg("Containment summary")
				}
			}

			return writeTable(cmd.OutOrStdout(), f.out, table)
		},
	}
	cmd.Flags().StringVar(&f.dsn, "db", "", "Sketch database DSN or path (default from config)")
	cmd.Flags().StringSliceVarP(&f.refs, "ref", "r", nil, "Reference sketch FASTA/FASTQ files, used instead of the database")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "Output CSV file (default stdout)")
	cmd.Flags().IntSliceVarP(&f.kSizes, "kmer-sizes", "k", nil, "K-mer sizes (default from config)")
	cmd.Flags().IntVarP(&f.workers, "workers", "j", 0, "Number of match workers (default from config)")
	cmd.Flags().IntVarP(&f.threshold, "threshold", "t", 0, "Exclusive minimum count at the largest k")
	cmd.Flags().StringVar(&f.policy, "policy", "", "Candidate dedup policy: first or every")
	cmd.Flags().BoolVarP(&f.progress, "progress", "p", false, "Show a progress bar on stderr")
	cmd.Flags().BoolVar(&f.all, "all", false, "Write every sketch, unfiltered and in reference order")
	cmd.Flags().BoolVar(&f.summary, "summary", false, "Log per k-mer size containment statistics")
	return cmd
}

func loadSketches(ctx context.Context, f *runFlags, logger zerolog.Logger) ([]sketch.ReferenceSketch, error) {
	if len(f.refs) > 0 {
		store, err := sketch.NewMemoryStore()
		if err != nil {
			return nil, err
		}
		for _, path := range f.refs {
			sk, err := sketch.ImportFastx(path, "")
			if err != nil {
				return nil, err
			}
			if err := store.InsertSketch(sk); err != nil {
				return nil, err
			}
		}
		return store.LoadSketches(ctx)
	}

	store, err := sketch.NewSQLStore(f.dsn, logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.LoadSketches(ctx)
}

func writeTable(stdout io.Writer, path string, table *report.Table) error {
	if path == "" {
		return table.WriteCSV(stdout)
	}
	fh, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	if err := table.WriteCSV(fh); err != nil {
		fh.Close()
		return err
	}
	return errors.Wrapf(fh.Close(), "closing %s", path)
}
