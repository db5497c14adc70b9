package enrich

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zonematch/internal/geozone"
	"github.com/sells-group/zonematch/internal/model"
	"github.com/sells-group/zonematch/internal/resilience"
	"github.com/sells-group/zonematch/internal/store"
)

// ErrRunComplete is returned when resuming a run that already finished.
var ErrRunComplete = eris.New("enrich: run is already complete")

// EnrichRun records a run in st, streams r through Enrich with rows going to
// both st and sink (which may be nil), and marks the run complete or failed.
// The returned run reflects its final state; the error is the pipeline's.
//
// Each chunk is written to st before sink, so sink never holds a row the
// store rejected. The run's stats are saved after every chunk, which is what
// ResumeRun continues from.
func EnrichRun(ctx context.Context, st store.Store, source string, r io.Reader, resolver *geozone.Resolver, sink Sink, opts Options) (*model.Run, error) {
	run, err := st.CreateRun(ctx, source)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: create run")
	}
	zap.L().Info("run started", zap.String("component", "enrich"), zap.String("run_id", run.ID), zap.String("source", source))
	return execRun(ctx, st, run, r, resolver, sink, opts)
}

// ResumeRun continues run runID over r, which must be the same input the
// run started on. Rows the run already counted are skipped, new rows are
// added to the same run, and the final stats include both passes. Rows
// stored past the last checkpoint are discarded first. opts.SkipRows is
// replaced by the run's recorded row count.
func ResumeRun(ctx context.Context, st store.Store, runID string, r io.Reader, resolver *geozone.Resolver, sink Sink, opts Options) (*model.Run, error) {
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: load run")
	}
	if run.Status == model.RunStatusComplete {
		return nil, eris.Wrapf(ErrRunComplete, "enrich: resume %s", runID)
	}
	dropped, err := st.ReopenRun(ctx, runID, run.Stats.Total)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: reopen run")
	}
	zap.L().Info("run resumed",
		zap.String("component", "enrich"),
		zap.String("run_id", run.ID),
		zap.Int64("skip_rows", run.Stats.Total),
		zap.Int64("dropped_rows", dropped),
	)

	opts.SkipRows = run.Stats.Total
	return execRun(ctx, st, run, r, resolver, sink, opts)
}

func execRun(ctx context.Context, st store.Store, run *model.Run, r io.Reader, resolver *geozone.Resolver, sink Sink, opts Options) (*model.Run, error) {
	log := zap.L().With(zap.String("component", "enrich"), zap.String("run_id", run.ID))

	prior := run.Stats
	withPrior := func(s model.RunStats) model.RunStats {
		var total model.RunStats
		total.Merge(prior)
		total.Merge(s)
		return total
	}

	var out Sink = NewStoreSink(st, run.ID)
	if sink != nil {
		out = Tee(out, sink)
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("enrich", "save_progress")
	opts.Checkpoint = func(ctx context.Context, s model.RunStats) error {
		saved := withPrior(s)
		return resilience.Do(ctx, retry, func(ctx context.Context) error {
			return st.SaveProgress(ctx, run.ID, saved)
		})
	}

	stats, runErr := Enrich(ctx, r, resolver, out, opts)
	stats = withPrior(stats)

	// The run is finalized even when ctx was cancelled mid-stream.
	finishCtx := context.WithoutCancel(ctx)
	if err := st.CompleteRun(finishCtx, run.ID, stats, runErr); err != nil {
		return nil, eris.Wrapf(err, "enrich: complete run %s", run.ID)
	}
	final, err := st.GetRun(finishCtx, run.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: reload run %s", run.ID)
	}

	if runErr != nil {
		log.Error("run failed", zap.Error(runErr))
	} else {
		log.Info("run complete", zap.Float64("match_rate", stats.MatchRate()))
	}
	return final, runErr
}
