package taxrate

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places kept for amounts.
const MoneyPlaces = 2

// Row-level rejections. They are returned unwrapped.
var (
	ErrNoRate          = eris.New("taxrate: no rate for zone code")
	ErrInvalidSubtotal = eris.New("taxrate: invalid subtotal")
)

// Amounts is the tax computed for one subtotal.
type Amounts struct {
	Code     string
	Subtotal decimal.Decimal
	Rate     decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Calculator applies a rate table to rows. The zero MinDate disables the
// timestamp check.
type Calculator struct {
	table   *Table
	minDate time.Time
}

// NewCalculator returns a calculator over t. Timestamps dated before
// minDate are rejected.
func NewCalculator(t *Table, minDate time.Time) *Calculator {
	return &Calculator{table: t, minDate: minDate}
}

// Table returns the calculator's rate table.
func (c *Calculator) Table() *Table { return c.table }

// Compute validates the timestamp and subtotal of a row delivered in zone
// code and returns its tax. The subtotal is rounded half-up to cents before
// the composite rate is applied; tax and total are rounded the same way.
func (c *Calculator) Compute(code, timestamp, subtotal string) (Amounts, error) {
	if _, err := ParseTimestamp(timestamp, c.minDate); err != nil {
		return Amounts{}, err
	}

	raw, err := decimal.NewFromString(strings.TrimSpace(subtotal))
	if err != nil || raw.IsNegative() {
		return Amounts{}, ErrInvalidSubtotal
	}

	b, ok := c.table.Lookup(code)
	if !ok {
		return Amounts{}, ErrNoRate
	}
	return Apply(raw, b.Composite, b.Code), nil
}

// Apply computes tax and total for subtotal at rate.
func Apply(subtotal, rate decimal.Decimal, code string) Amounts {
	sub := subtotal.Round(MoneyPlaces)
	r := rate.Round(RatePlaces)
	tax := sub.Mul(r).Round(MoneyPlaces)
	return Amounts{
		Code:     code,
		Subtotal: sub,
		Rate:     r,
		Tax:      tax,
		Total:    sub.Add(tax).Round(MoneyPlaces),
	}
}
