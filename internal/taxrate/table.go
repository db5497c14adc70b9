// Package taxrate holds per-zone tax rate tables and computes the tax owed
// on a subtotal delivered inside a zone.
package taxrate

import (
	"errors"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/zonematch/internal/geozone"
)

// RatePlaces is the number of decimal places kept for rates.
const RatePlaces = 5

// Section names in a rate file, in the order they are summed.
const (
	SectionState   = "state_rate"
	SectionCounty  = "county_rate"
	SectionCity    = "city_rate"
	SectionSpecial = "special_rates"
)

var sectionNames = []string{SectionState, SectionCounty, SectionCity, SectionSpecial}

// ErrInvalidTable is returned when a rate file does not have the expected
// shape.
var ErrInvalidTable = eris.New("taxrate: invalid rate table")

// Jurisdiction is one named rate contributing to a section.
type Jurisdiction struct {
	Name string          `yaml:"name" json:"name"`
	Rate decimal.Decimal `yaml:"rate" json:"rate"`
}

// Jurisdictions groups the contributing rates of one zone by section.
type Jurisdictions struct {
	State   []Jurisdiction `yaml:"state_rate" json:"state_rate"`
	County  []Jurisdiction `yaml:"county_rate" json:"county_rate"`
	City    []Jurisdiction `yaml:"city_rate" json:"city_rate"`
	Special []Jurisdiction `yaml:"special_rates" json:"special_rates"`
}

// Breakdown is the rate of one zone code: each section summed and rounded,
// and their composite.
type Breakdown struct {
	Code          string          `yaml:"code" json:"code"`
	State         decimal.Decimal `yaml:"state_rate" json:"state_rate"`
	County        decimal.Decimal `yaml:"county_rate" json:"county_rate"`
	City          decimal.Decimal `yaml:"city_rate" json:"city_rate"`
	Special       decimal.Decimal `yaml:"special_rates" json:"special_rates"`
	Composite     decimal.Decimal `yaml:"composite_rate" json:"composite_rate"`
	Jurisdictions Jurisdictions   `yaml:"jurisdictions" json:"jurisdictions"`
}

// Table maps normalized zone codes to rate breakdowns. It is read-only
// after construction and safe for concurrent use.
type Table struct {
	rates map[string]Breakdown
}

// NewTable builds a table from raw codes. Codes are normalized with
// geozone.NormalizeCode; two raw codes normalizing to the same code are an
// error.
func NewTable(entries map[string]Jurisdictions) (*Table, error) {
	t := &Table{rates: make(map[string]Breakdown, len(entries))}
	for raw, j := range entries {
		code, err := geozone.NormalizeCode(raw)
		if err != nil {
			return nil, eris.Wrapf(ErrInvalidTable, "taxrate: code %q: %v", raw, err)
		}
		if _, dup := t.rates[code]; dup {
			return nil, eris.Wrapf(ErrInvalidTable, "taxrate: duplicate code %s", code)
		}
		t.rates[code] = newBreakdown(code, j)
	}
	return t, nil
}

func newBreakdown(code string, j Jurisdictions) Breakdown {
	b := Breakdown{
		Code:          code,
		State:         sumRates(j.State),
		County:        sumRates(j.County),
		City:          sumRates(j.City),
		Special:       sumRates(j.Special),
		Jurisdictions: j,
	}
	b.Composite = b.State.Add(b.County).Add(b.City).Add(b.Special).Round(RatePlaces)
	return b
}

func sumRates(items []Jurisdiction) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Rate)
	}
	return sum.Round(RatePlaces)
}

// Lookup returns the breakdown for code. code is normalized first, so "42"
// finds the entry for "0042".
func (t *Table) Lookup(code string) (Breakdown, bool) {
	norm, err := geozone.NormalizeCode(code)
	if err != nil {
		return Breakdown{}, false
	}
	b, ok := t.rates[norm]
	return b, ok
}

// Len returns the number of codes in the table.
func (t *Table) Len() int { return len(t.rates) }

// Codes returns the table's codes in sorted order.
func (t *Table) Codes() []string {
	codes := make([]string, 0, len(t.rates))
	for c := range t.rates {
		codes = append(codes, c)
	}
	slices.Sort(codes)
	return codes
}

// rawItem keeps name and rate optional so missing keys can be reported.
type rawItem struct {
	Name *string          `yaml:"name"`
	Rate *decimal.Decimal `yaml:"rate"`
}

// Parse reads a rate file: a YAML or JSON object keyed by zone code, each
// value holding the four sections as lists of {name, rate} items. Every
// section must be present and no other key is allowed.
func Parse(r io.Reader) (*Table, error) {
	var raw map[string]map[string][]rawItem
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, eris.Wrap(ErrInvalidTable, "taxrate: empty rate file")
		}
		return nil, eris.Wrap(err, "taxrate: decode rate file")
	}

	entries := make(map[string]Jurisdictions, len(raw))
	for code, sections := range raw {
		j, err := parseSections(code, sections)
		if err != nil {
			return nil, err
		}
		entries[code] = j
	}
	return NewTable(entries)
}

func parseSections(code string, sections map[string][]rawItem) (Jurisdictions, error) {
	var missing, unknown []string
	for _, name := range sectionNames {
		if _, ok := sections[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range sections {
		if !slices.Contains(sectionNames, name) {
			unknown = append(unknown, name)
		}
	}
	if len(missing) > 0 {
		return Jurisdictions{}, eris.Wrapf(ErrInvalidTable, "taxrate: code %s: missing sections %s", code, strings.Join(missing, ", "))
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return Jurisdictions{}, eris.Wrapf(ErrInvalidTable, "taxrate: code %s: unknown sections %s", code, strings.Join(unknown, ", "))
	}

	var j Jurisdictions
	targets := []*[]Jurisdiction{&j.State, &j.County, &j.City, &j.Special}
	for k, name := range sectionNames {
		items := sections[name]
		out := make([]Jurisdiction, 0, len(items))
		for idx, it := range items {
			if it.Name == nil || it.Rate == nil {
				return Jurisdictions{}, eris.Wrapf(ErrInvalidTable, "taxrate: code %s: item %d in %s needs name and rate", code, idx, name)
			}
			n := strings.TrimSpace(*it.Name)
			if n == "" {
				return Jurisdictions{}, eris.Wrapf(ErrInvalidTable, "taxrate: code %s: item %d in %s has an empty name", code, idx, name)
			}
			out = append(out, Jurisdiction{Name: n, Rate: *it.Rate})
		}
		*targets[k] = out
	}
	return j, nil
}

// LoadFile parses the rate file at path.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "taxrate: open rate file")
	}
	defer f.Close() //nolint:errcheck

	t, err := Parse(f)
	if err != nil {
		return nil, eris.Wrapf(err, "taxrate: %s", path)
	}
	return t, nil
}
