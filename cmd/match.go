package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/zonematch/internal/enrich"
	"github.com/sells-group/zonematch/internal/geozone"
	"github.com/sells-group/zonematch/internal/model"
	"github.com/sells-group/zonematch/internal/store"
)

// matchParams holds the flags of one match invocation.
type matchParams struct {
	Input    string
	Output   string
	Persist  bool
	Resume   string
	SkipRows int64
	Workers  int
}

var matchFlags matchParams

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Resolve every row of a CSV file to a zone",
	Long:  "Reads a CSV with longitude, latitude, timestamp and subtotal columns, resolves each point against the configured zone layers, and writes the enriched rows as CSV and/or to the run store.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMatch(cmd.Context(), matchFlags, os.Stdout, os.Stderr)
	},
}

func init() {
	matchCmd.Flags().StringVar(&matchFlags.Input, "input", "", "path to the input CSV (required)")
	matchCmd.Flags().StringVar(&matchFlags.Output, "output", "-", "enriched CSV destination; - for stdout, empty to disable")
	matchCmd.Flags().BoolVar(&matchFlags.Persist, "persist", false, "record the run and its rows in the configured store")
	matchCmd.Flags().StringVar(&matchFlags.Resume, "resume", "", "continue the interrupted run with this ID (implies --persist)")
	matchCmd.Flags().Int64Var(&matchFlags.SkipRows, "skip", 0, "skip the first N data rows")
	matchCmd.MarkFlagsMutuallyExclusive("resume", "skip")
	matchCmd.Flags().IntVar(&matchFlags.Workers, "workers", 0, "override match.workers")
	_ = matchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(matchCmd)
}

func runMatch(ctx context.Context, p matchParams, stdout, stderr io.Writer) error {
	if err := cfg.Validate("match"); err != nil {
		return err
	}
	if p.Resume != "" {
		if p.SkipRows > 0 {
			return eris.New("--resume and --skip cannot be combined")
		}
		p.Persist = true
	}
	if p.Output == "" && !p.Persist {
		return eris.New("nothing to do: set --output or --persist")
	}

	calc, err := loadCalculator()
	if err != nil {
		return eris.Wrap(err, "match: load tax rates")
	}
	resolver, err := loadResolver(ctx)
	if err != nil {
		return eris.Wrap(err, "match: load zones")
	}

	in, err := os.Open(p.Input)
	if err != nil {
		return eris.Wrap(err, "match: open input")
	}
	defer in.Close() //nolint:errcheck

	var csvSink *enrich.CSVSink
	switch p.Output {
	case "":
	case "-":
		csvSink = enrich.NewCSVSink(stdout)
	default:
		out, err := os.Create(p.Output)
		if err != nil {
			return eris.Wrap(err, "match: create output")
		}
		defer out.Close() //nolint:errcheck
		csvSink = enrich.NewCSVSink(out)
	}
	if csvSink != nil && calc != nil {
		csvSink.WithTax()
	}

	opts := matchOptions(p)
	opts.Taxes = calc
	stats, runID, runErr := execMatch(ctx, p, in, resolver, csvSink, opts)

	if csvSink != nil {
		if err := csvSink.Flush(); err != nil && runErr == nil {
			runErr = err
		}
	}

	if runID != "" {
		_, _ = fmt.Fprintf(stderr, "Run: %s\n", runID)
	}
	formatMatchStats(stderr, stats)

	if runErr != nil {
		return eris.Wrap(runErr, "match")
	}
	return nil
}

// execMatch streams in through the pipeline, recording a run when persisting
// or continuing one when resuming.
func execMatch(ctx context.Context, p matchParams, in io.Reader, resolver *geozone.Resolver, csvSink *enrich.CSVSink, opts enrich.Options) (model.RunStats, string, error) {
	var sink enrich.Sink
	if csvSink != nil {
		sink = csvSink
	}

	if !p.Persist {
		stats, err := enrich.Enrich(ctx, in, resolver, sink, opts)
		return stats, "", err
	}

	st, err := initStore(ctx)
	if err != nil {
		return model.RunStats{}, "", err
	}
	defer st.Close() //nolint:errcheck

	var run *model.Run
	if p.Resume != "" {
		run, err = resumeMatch(ctx, st, p, in, resolver, sink, opts)
	} else {
		run, err = enrich.EnrichRun(ctx, st, p.Input, in, resolver, sink, opts)
	}
	if run == nil {
		return model.RunStats{}, "", err
	}
	zap.L().Info("match run recorded", zap.String("run_id", run.ID), zap.String("status", string(run.Status)))
	return run.Stats, run.ID, err
}

// resumeMatch continues run p.Resume, which must have been started on the
// same input path.
func resumeMatch(ctx context.Context, st store.Store, p matchParams, in io.Reader, resolver *geozone.Resolver, sink enrich.Sink, opts enrich.Options) (*model.Run, error) {
	prev, err := st.GetRun(ctx, p.Resume)
	if err != nil {
		return nil, err
	}
	if prev.Source != p.Input {
		return nil, eris.Errorf("run %s was started on %s, not %s", prev.ID, prev.Source, p.Input)
	}
	return enrich.ResumeRun(ctx, st, p.Resume, in, resolver, sink, opts)
}

func matchOptions(p matchParams) enrich.Options {
	workers := cfg.Match.Workers
	if p.Workers > 0 {
		workers = p.Workers
	}
	return enrich.Options{
		Workers:          workers,
		ChunkSize:        cfg.Match.ChunkSize,
		ProgressInterval: cfg.Match.ProgressInterval(),
		SkipRows:         p.SkipRows,
	}
}

// formatMatchStats writes a run summary to w.
func formatMatchStats(out io.Writer, s model.RunStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Rows:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Matched:\t%d\n", s.Matched)
	_, _ = fmt.Fprintf(w, "Unmatched:\t%d\n", s.Unmatched)
	_, _ = fmt.Fprintf(w, "Rejected:\t%d\n", s.Rejected)

	reasons := make([]string, 0, len(s.Reasons))
	for r := range s.Reasons {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", r, s.Reasons[r])
	}
	if s.Matched+s.Unmatched > 0 {
		_, _ = fmt.Fprintf(w, "Match rate:\t%.1f%%\n", 100*s.MatchRate())
	}
	_ = w.Flush()
}
