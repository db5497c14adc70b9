package csvline

import "github.com/rotisserie/eris"

// Row rejections. These are returned unwrapped.
var (
	ErrEmptyLine          = eris.New("csvline: empty line")
	ErrMalformedRow       = eris.New("csvline: malformed row")
	ErrUnparseableNumeric = eris.New("csvline: unparseable numeric field")
	ErrOversizedField     = eris.New("csvline: oversized numeric field")
)

// Caller errors.
var (
	ErrInvalidLayout  = eris.New("csvline: negative column index")
	ErrEmptyHeader    = eris.New("csvline: empty header")
	ErrMissingColumns = eris.New("csvline: missing required columns")
)
