package enrich

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/zonematch/internal/model"
	"github.com/sells-group/zonematch/internal/resilience"
)

// Sink receives enriched rows in input order. rows is reused after Write
// returns, so implementations must not retain it.
type Sink interface {
	Write(ctx context.Context, rows []model.MatchedRow) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rows []model.MatchedRow) error

// Write calls f.
func (f SinkFunc) Write(ctx context.Context, rows []model.MatchedRow) error {
	return f(ctx, rows)
}

// Tee returns a Sink that writes to each sink in turn and stops at the first
// error.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, rows []model.MatchedRow) error {
		for _, s := range sinks {
			if err := s.Write(ctx, rows); err != nil {
				return err
			}
		}
		return nil
	})
}

// CSVHeader is the header row written by CSVSink.
var CSVHeader = []string{"line", "longitude", "latitude", "timestamp", "subtotal", "layer", "code", "matched"}

// CSVTaxHeader is appended to CSVHeader by a CSVSink with tax columns.
var CSVTaxHeader = []string{"tax_rate", "tax", "total"}

// CSVSink writes enriched rows as CSV. Call Flush when the run is done.
type CSVSink struct {
	w           *csv.Writer
	wroteHeader bool
	withTax     bool
	record      []string
}

// NewCSVSink returns a CSVSink writing to w.
func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: csv.NewWriter(w), record: make([]string, len(CSVHeader))}
}

// WithTax adds the tax_rate, tax, and total columns. It must be called
// before the first Write.
func (s *CSVSink) WithTax() *CSVSink {
	s.withTax = true
	s.record = make([]string, len(CSVHeader)+len(CSVTaxHeader))
	return s
}

// Write implements Sink.
func (s *CSVSink) Write(_ context.Context, rows []model.MatchedRow) error {
	if err := s.header(); err != nil {
		return err
	}
	for _, r := range rows {
		s.record[0] = strconv.FormatInt(r.Line, 10)
		s.record[1] = strconv.FormatFloat(r.Lon, 'f', -1, 64)
		s.record[2] = strconv.FormatFloat(r.Lat, 'f', -1, 64)
		s.record[3] = r.Timestamp
		s.record[4] = r.Subtotal
		s.record[5] = r.Layer
		s.record[6] = r.Code
		s.record[7] = strconv.FormatBool(r.Matched)
		if s.withTax {
			s.record[8] = r.TaxRate
			s.record[9] = r.Tax
			s.record[10] = r.Total
		}
		if err := s.w.Write(s.record); err != nil {
			return eris.Wrapf(err, "enrich: write csv line %d", r.Line)
		}
	}
	return nil
}

// Flush writes the header if no rows were written and flushes buffered
// output.
func (s *CSVSink) Flush() error {
	if err := s.header(); err != nil {
		return err
	}
	s.w.Flush()
	return eris.Wrap(s.w.Error(), "enrich: flush csv")
}

func (s *CSVSink) header() error {
	if s.wroteHeader {
		return nil
	}
	s.wroteHeader = true
	header := CSVHeader
	if s.withTax {
		header = append(append([]string{}, CSVHeader...), CSVTaxHeader...)
	}
	return eris.Wrap(s.w.Write(header), "enrich: write csv header")
}

// RowWriter is the part of store.Store a StoreSink needs.
type RowWriter interface {
	WriteRows(ctx context.Context, runID string, rows []model.MatchedRow) (int64, error)
}

// StoreSink persists enriched rows under one run. Writes that fail with a
// transient database error are retried.
type StoreSink struct {
	store   RowWriter
	runID   string
	retry   resilience.RetryConfig
	written int64
}

// NewStoreSink returns a StoreSink writing rows for runID with the default
// retry policy.
func NewStoreSink(store RowWriter, runID string) *StoreSink {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("enrich", "write_rows")
	return &StoreSink{store: store, runID: runID, retry: retry}
}

// WithRetry replaces the retry policy.
func (s *StoreSink) WithRetry(cfg resilience.RetryConfig) *StoreSink {
	s.retry = cfg
	return s
}

// Write implements Sink.
func (s *StoreSink) Write(ctx context.Context, rows []model.MatchedRow) error {
	n, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (int64, error) {
		return s.store.WriteRows(ctx, s.runID, rows)
	})
	if err != nil {
		return eris.Wrapf(err, "enrich: persist rows for run %s", s.runID)
	}
	s.written += n
	return nil
}

// Written returns the number of rows persisted so far.
func (s *StoreSink) Written() int64 {
	return s.written
}
