package model

// MatchedRow is one parsed input row and the zone it resolved to, if any.
// Timestamp and Subtotal are carried through as read. The tax columns are
// set only when a rate table is applied, formatted as fixed-point decimals.
type MatchedRow struct {
	Line      int64   `json:"line"`
	Lon       float64 `json:"lon"`
	Lat       float64 `json:"lat"`
	Timestamp string  `json:"timestamp"`
	Subtotal  string  `json:"subtotal"`
	Layer     string  `json:"layer,omitempty"`
	Code      string  `json:"code,omitempty"`
	Matched   bool    `json:"matched"`
	TaxRate   string  `json:"tax_rate,omitempty"`
	Tax       string  `json:"tax,omitempty"`
	Total     string  `json:"total,omitempty"`
}
