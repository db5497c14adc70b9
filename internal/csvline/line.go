// Package csvline extracts the coordinate, timestamp, and subtotal columns
// from a single CSV row without allocating.
package csvline

import (
	"math"
	"strconv"
	"unsafe"
)

// MaxNumericLen is the exclusive upper bound on the trimmed length of a
// longitude or latitude field.
const MaxNumericLen = 256

// Layout locates the extracted columns within a row. Indices are zero-based.
type Layout struct {
	Lon       int
	Lat       int
	Timestamp int
	Subtotal  int

	// AllowTrailingNewline strips trailing CR/LF bytes before tokenizing.
	// When false, a line ending in CR or LF is rejected as malformed.
	AllowTrailingNewline bool
}

// Validate reports ErrInvalidLayout if any column index is negative.
func (l Layout) Validate() error {
	if l.Lon < 0 || l.Lat < 0 || l.Timestamp < 0 || l.Subtotal < 0 {
		return ErrInvalidLayout
	}
	return nil
}

// Span is a half-open byte range [Start, End) within a line.
type Span struct {
	Start int
	End   int
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Bytes returns the span's view into line. The result aliases line.
func (s Span) Bytes(line []byte) []byte {
	return line[s.Start:s.End:s.End]
}

// String copies the span's bytes out of line.
func (s Span) String(line []byte) string {
	return string(line[s.Start:s.End])
}

// Record is the result of a successful ParseLine call. Timestamp and
// Subtotal are unvalidated views into the parsed line.
type Record struct {
	Lon       float64
	Lat       float64
	Timestamp Span
	Subtotal  Span
}

// column slots in the order they are stored while scanning.
const (
	slotLon = iota
	slotLat
	slotTimestamp
	slotSubtotal
	numSlots
)

// ParseLine tokenizes one CSV row and extracts the columns named by layout.
//
// Commas split fields only outside double-quoted regions; a doubled quote
// inside a quoted region is a literal quote. Each field is trimmed of ASCII
// whitespace and then of one enclosing quote pair. Internal doubled quotes
// are left as they appear in the line.
//
// Any failure rejects the whole row and returns the zero Record.
func ParseLine(line []byte, layout Layout) (Record, error) {
	if err := layout.Validate(); err != nil {
		return Record{}, err
	}

	n := len(line)
	if layout.AllowTrailingNewline {
		for n > 0 && (line[n-1] == '\n' || line[n-1] == '\r') {
			n--
		}
	} else if n > 0 && (line[n-1] == '\n' || line[n-1] == '\r') {
		return Record{}, ErrMalformedRow
	}
	if n == 0 {
		return Record{}, ErrEmptyLine
	}
	line = line[:n]

	want := [numSlots]int{layout.Lon, layout.Lat, layout.Timestamp, layout.Subtotal}
	var spans [numSlots]Span
	var found [numSlots]bool

	field := 0
	fieldStart := 0
	inQuotes := false

	// i == n acts as the terminating comma for the last field.
	for i := 0; i <= n; i++ {
		if i < n {
			c := line[i]
			if c == '"' {
				if inQuotes && i+1 < n && line[i+1] == '"' {
					i++
					continue
				}
				inQuotes = !inQuotes
				continue
			}
			if inQuotes || c != ',' {
				continue
			}
		}

		s := trimField(line, fieldStart, i)
		for slot, idx := range want {
			if idx == field {
				spans[slot] = s
				found[slot] = true
			}
		}

		field++
		fieldStart = i + 1
	}

	for _, ok := range found {
		if !ok {
			return Record{}, ErrMalformedRow
		}
	}

	lon, err := parseNumeric(spans[slotLon].Bytes(line))
	if err != nil {
		return Record{}, err
	}
	lat, err := parseNumeric(spans[slotLat].Bytes(line))
	if err != nil {
		return Record{}, err
	}

	return Record{
		Lon:       lon,
		Lat:       lat,
		Timestamp: spans[slotTimestamp],
		Subtotal:  spans[slotSubtotal],
	}, nil
}

// trimField narrows [start, end) past surrounding whitespace and then past
// one enclosing quote pair.
func trimField(line []byte, start, end int) Span {
	for start < end && isSpace(line[start]) {
		start++
	}
	for end > start && isSpace(line[end-1]) {
		end--
	}
	if end-start >= 2 && line[start] == '"' && line[end-1] == '"' {
		start++
		end--
	}
	return Span{Start: start, End: end}
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// parseNumeric converts a trimmed field to a finite float64. The whole field
// must be consumed. The field bytes are read in place; ParseFloat does not
// retain its argument.
func parseNumeric(b []byte) (float64, error) {
	if len(b) == 0 {
		return 0, ErrUnparseableNumeric
	}
	if len(b) >= MaxNumericLen {
		return 0, ErrOversizedField
	}

	v, err := strconv.ParseFloat(unsafe.String(unsafe.SliceData(b), len(b)), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, ErrUnparseableNumeric
	}
	return v, nil
}
