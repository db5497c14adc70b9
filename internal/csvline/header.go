package csvline

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Canonical header names, after NormalizeHeader.
const (
	HeaderLongitude = "longitude"
	HeaderLatitude  = "latitude"
	HeaderTimestamp = "timestamp"
	HeaderSubtotal  = "subtotal"
)

// NormalizeHeader lower-cases a header name and drops surrounding whitespace,
// underscores, and spaces, so "Sub_Total " and "subtotal" compare equal.
func NormalizeHeader(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer("_", "", " ", "").Replace(name)
}

// ResolveLayout maps a header row to a Layout. The first occurrence of each
// required column wins. The returned layout allows trailing newlines.
func ResolveLayout(header []string) (Layout, error) {
	if len(header) == 0 {
		return Layout{}, ErrEmptyHeader
	}

	// Build normalized name → index map.
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := NormalizeHeader(h)
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}

	required := []string{HeaderLongitude, HeaderLatitude, HeaderTimestamp, HeaderSubtotal}
	var missing []string
	cols := make([]int, len(required))
	for i, name := range required {
		c, ok := idx[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		cols[i] = c
	}
	if len(missing) > 0 {
		return Layout{}, eris.Wrapf(ErrMissingColumns, "csvline: header lacks %s", strings.Join(missing, ", "))
	}

	return Layout{
		Lon:                  cols[0],
		Lat:                  cols[1],
		Timestamp:            cols[2],
		Subtotal:             cols[3],
		AllowTrailingNewline: true,
	}, nil
}

// SplitHeader splits a raw header line on commas and strips a trailing
// newline. Header names are not expected to contain quoted commas.
func SplitHeader(line string) []string {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil
	}
	fields := strings.Split(line, ",")
	for i, f := range fields {
		f = strings.TrimSpace(f)
		if len(f) >= 2 && f[0] == '"' && f[len(f)-1] == '"' {
			f = f[1 : len(f)-1]
		}
		fields[i] = f
	}
	return fields
}
