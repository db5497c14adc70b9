// Package enrich streams a CSV of point records through the line tokenizer
// and the zone resolver and hands the enriched rows to a Sink in input order.
package enrich

import (
	"bufio"
	"context"
	"errors"
	"io"
	"runtime"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"

	"github.com/sells-group/zonematch/internal/csvline"
	"github.com/sells-group/zonematch/internal/geozone"
	"github.com/sells-group/zonematch/internal/model"
	"github.com/sells-group/zonematch/internal/taxrate"
)

// Defaults applied to zero Options fields.
const (
	DefaultChunkSize        = 1000
	DefaultProgressInterval = 2 * time.Second
)

const (
	readBufferSize = 64 << 10

	// Chunks smaller than this are classified on the calling goroutine.
	minParallelRows = 100
)

// ErrNoHeader is returned when the input has no header line.
var ErrNoHeader = eris.New("enrich: input has no header")

// Options tunes a pipeline run.
type Options struct {
	// Workers bounds the goroutines classifying one chunk. Zero means
	// GOMAXPROCS.
	Workers int

	// ChunkSize is the number of rows read before a chunk is classified and
	// flushed to the sink.
	ChunkSize int

	// ProgressInterval is the minimum time between progress log lines.
	ProgressInterval time.Duration

	// SkipRows drops the first SkipRows data rows without counting them, to
	// resume an interrupted run.
	SkipRows int64

	// Taxes, when set, computes tax for every matched row. A matched row
	// whose timestamp, subtotal, or zone rate is unusable is rejected.
	Taxes *taxrate.Calculator

	// Checkpoint, when set, is called after each chunk has been written to
	// the sink, with the cumulative stats so far.
	Checkpoint func(ctx context.Context, stats model.RunStats) error
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = DefaultProgressInterval
	}
	if o.SkipRows < 0 {
		o.SkipRows = 0
	}
	return o
}

// outcome is the classification of one row.
type outcome struct {
	rec     csvline.Record
	match   geozone.Match
	matched bool
	taxed   bool
	amounts taxrate.Amounts
	reason  string
}

type pipeline struct {
	resolver *geozone.Resolver
	layout   csvline.Layout
	sink     Sink
	opts     Options
	log      *zap.Logger
}

// Enrich reads a header line and then every data row from r. Each row is
// tokenized, its point resolved against resolver, and the result passed to
// sink. Rejected rows are counted by reason and dropped. Data rows are
// numbered from 1; the header is not counted.
//
// A UTF-8 byte order mark is stripped, and UTF-16 input with a BOM is
// decoded to UTF-8.
func Enrich(ctx context.Context, r io.Reader, resolver *geozone.Resolver, sink Sink, opts Options) (model.RunStats, error) {
	var stats model.RunStats
	if resolver == nil || sink == nil {
		return stats, eris.New("enrich: resolver and sink are required")
	}
	opts = opts.withDefaults()

	lr := newLineReader(transform.NewReader(r, unicode.BOMOverride(transform.Nop)))

	header, err := lr.next()
	if errors.Is(err, io.EOF) {
		return stats, ErrNoHeader
	}
	if err != nil {
		return stats, eris.Wrap(err, "enrich: read header")
	}
	layout, err := csvline.ResolveLayout(csvline.SplitHeader(string(header)))
	if err != nil {
		return stats, eris.Wrap(err, "enrich: resolve header")
	}

	p := &pipeline{
		resolver: resolver,
		layout:   layout,
		sink:     sink,
		opts:     opts,
		log:      zap.L().With(zap.String("component", "enrich")),
	}
	return p.run(ctx, lr)
}

func (p *pipeline) run(ctx context.Context, lr *lineReader) (model.RunStats, error) {
	var stats model.RunStats
	start := time.Now()
	progress := rate.Sometimes{Interval: p.opts.ProgressInterval}

	var (
		c    chunk
		out  = make([]outcome, 0, p.opts.ChunkSize)
		rows = make([]model.MatchedRow, 0, p.opts.ChunkSize)
		next = int64(1)
	)

	for {
		if err := ctx.Err(); err != nil {
			return stats, eris.Wrap(err, "enrich: cancelled")
		}

		c.reset(next)
		eof := false
		for c.Len() < p.opts.ChunkSize {
			line, err := lr.next()
			if errors.Is(err, io.EOF) {
				eof = true
				break
			}
			if err != nil {
				return stats, eris.Wrapf(err, "enrich: read row %d", next)
			}
			if next <= p.opts.SkipRows {
				next++
				c.reset(next)
				continue
			}
			c.add(line)
			next++
		}

		if n := c.Len(); n > 0 {
			out = out[:n]
			if err := p.classify(ctx, &c, out); err != nil {
				return stats, eris.Wrap(err, "enrich: classify")
			}

			// Rows count toward stats only once the sink has taken them.
			var cs model.RunStats
			rows = rows[:0]
			for i := range out {
				o := &out[i]
				if o.reason != "" {
					cs.Reject(o.reason)
					continue
				}
				cs.Accept(o.matched)

				line := c.row(i)
				row := model.MatchedRow{
					Line:      c.first + int64(i),
					Lon:       o.rec.Lon,
					Lat:       o.rec.Lat,
					Timestamp: o.rec.Timestamp.String(line),
					Subtotal:  o.rec.Subtotal.String(line),
					Matched:   o.matched,
				}
				if o.matched {
					row.Layer = o.match.Layer
					row.Code = o.match.Code
				}
				if o.taxed {
					row.TaxRate = o.amounts.Rate.StringFixed(taxrate.RatePlaces)
					row.Tax = o.amounts.Tax.StringFixed(taxrate.MoneyPlaces)
					row.Total = o.amounts.Total.StringFixed(taxrate.MoneyPlaces)
				}
				rows = append(rows, row)
			}

			if len(rows) > 0 {
				if err := p.sink.Write(ctx, rows); err != nil {
					return stats, eris.Wrapf(err, "enrich: write rows %d-%d", c.first, c.first+int64(n)-1)
				}
			}
			stats.Merge(cs)
			if p.opts.Checkpoint != nil {
				if err := p.opts.Checkpoint(ctx, stats); err != nil {
					return stats, eris.Wrapf(err, "enrich: checkpoint after row %d", c.first+int64(n)-1)
				}
			}

			progress.Do(func() {
				p.log.Info("progress",
					zap.Int64("rows", stats.Total),
					zap.Int64("matched", stats.Matched),
					zap.Int64("rejected", stats.Rejected),
				)
			})
		}

		if eof {
			break
		}
	}

	p.log.Info("enrichment complete",
		zap.Int64("rows", stats.Total),
		zap.Int64("matched", stats.Matched),
		zap.Int64("unmatched", stats.Unmatched),
		zap.Int64("rejected", stats.Rejected),
		zap.Any("reasons", stats.Reasons),
		zap.Duration("elapsed", time.Since(start)),
	)
	return stats, nil
}

// classify fills out[i] for every row of c. Each worker owns a contiguous
// range of slots.
func (p *pipeline) classify(ctx context.Context, c *chunk, out []outcome) error {
	n := c.Len()
	workers := p.opts.Workers
	if n < minParallelRows || workers == 1 {
		p.classifyRange(c, out, 0, n)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	span := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += span {
		hi := min(lo+span, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p.classifyRange(c, out, lo, hi)
			return nil
		})
	}
	return g.Wait()
}

func (p *pipeline) classifyRange(c *chunk, out []outcome, lo, hi int) {
	for i := lo; i < hi; i++ {
		line := c.row(i)
		rec, err := csvline.ParseLine(line, p.layout)
		if err != nil {
			out[i] = outcome{reason: rejectReason(err)}
			continue
		}
		m, ok, err := p.resolver.Resolve(geozone.Point{Lon: rec.Lon, Lat: rec.Lat})
		if err != nil {
			out[i] = outcome{reason: rejectReason(err)}
			continue
		}
		o := outcome{rec: rec, match: m, matched: ok}
		if ok && p.opts.Taxes != nil {
			amounts, err := p.opts.Taxes.Compute(m.Code, rec.Timestamp.String(line), rec.Subtotal.String(line))
			if err != nil {
				out[i] = outcome{reason: rejectReason(err)}
				continue
			}
			o.taxed, o.amounts = true, amounts
		}
		out[i] = o
	}
}

// rejectReason maps a row error to the reason it is counted under.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, csvline.ErrEmptyLine):
		return model.ReasonEmpty
	case errors.Is(err, csvline.ErrUnparseableNumeric):
		return model.ReasonNumeric
	case errors.Is(err, csvline.ErrOversizedField):
		return model.ReasonOversized
	case errors.Is(err, geozone.ErrCoordinateRange):
		return model.ReasonCoordinate
	case errors.Is(err, taxrate.ErrInvalidTimestamp), errors.Is(err, taxrate.ErrBeforeMinDate):
		return model.ReasonTimestamp
	case errors.Is(err, taxrate.ErrInvalidSubtotal):
		return model.ReasonSubtotal
	case errors.Is(err, taxrate.ErrNoRate):
		return model.ReasonNoRate
	}
	return model.ReasonMalformed
}

// lineReader yields newline-terminated lines. A returned line is valid until
// the next call.
type lineReader struct {
	br   *bufio.Reader
	long []byte
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{br: bufio.NewReaderSize(r, readBufferSize)}
}

// next returns the next line with its terminator, if any. io.EOF is returned
// only once no bytes remain.
func (lr *lineReader) next() ([]byte, error) {
	line, err := lr.br.ReadSlice('\n')
	switch {
	case err == nil:
		return line, nil
	case errors.Is(err, io.EOF):
		if len(line) > 0 {
			return line, nil
		}
		return nil, io.EOF
	case !errors.Is(err, bufio.ErrBufferFull):
		return nil, err
	}

	lr.long = append(lr.long[:0], line...)
	for {
		line, err = lr.br.ReadSlice('\n')
		lr.long = append(lr.long, line...)
		switch {
		case err == nil, errors.Is(err, io.EOF):
			return lr.long, nil
		case !errors.Is(err, bufio.ErrBufferFull):
			return nil, err
		}
	}
}

// chunk is an arena holding a run of consecutive rows in one buffer.
type chunk struct {
	buf   []byte
	ends  []int
	first int64
}

func (c *chunk) reset(first int64) {
	c.buf = c.buf[:0]
	c.ends = c.ends[:0]
	c.first = first
}

func (c *chunk) add(line []byte) {
	c.buf = append(c.buf, line...)
	c.ends = append(c.ends, len(c.buf))
}

func (c *chunk) Len() int {
	return len(c.ends)
}

func (c *chunk) row(i int) []byte {
	start := 0
	if i > 0 {
		start = c.ends[i-1]
	}
	return c.buf[start:c.ends[i]:c.ends[i]]
}
