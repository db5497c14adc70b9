// Package model holds the value types shared by the enrichment pipeline and
// the stores.
package model

import "time"

// RunStatus represents the current state of a match run.
type RunStatus string

const (
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// Run is one pass of an input file through the matcher.
type Run struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Status    RunStatus `json:"status"`
	Stats     RunStats  `json:"stats"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Rejection reasons recorded in RunStats.Reasons.
const (
	ReasonEmpty      = "empty"
	ReasonMalformed  = "malformed"
	ReasonNumeric    = "numeric"
	ReasonOversized  = "oversized"
	ReasonCoordinate = "coordinate"
	ReasonTimestamp  = "timestamp"
	ReasonSubtotal   = "subtotal"
	ReasonNoRate     = "no_rate"
)

// RunStats counts rows by outcome. Total = Matched + Unmatched + Rejected.
type RunStats struct {
	Total     int64            `json:"total"`
	Matched   int64            `json:"matched"`
	Unmatched int64            `json:"unmatched"`
	Rejected  int64            `json:"rejected"`
	Reasons   map[string]int64 `json:"reasons,omitempty"`
}

// Reject counts one rejected row under reason.
func (s *RunStats) Reject(reason string) {
	s.Total++
	s.Rejected++
	if s.Reasons == nil {
		s.Reasons = make(map[string]int64)
	}
	s.Reasons[reason]++
}

// Accept counts one parsed row.
func (s *RunStats) Accept(matched bool) {
	s.Total++
	if matched {
		s.Matched++
	} else {
		s.Unmatched++
	}
}

// Merge adds o's counts into s.
func (s *RunStats) Merge(o RunStats) {
	s.Total += o.Total
	s.Matched += o.Matched
	s.Unmatched += o.Unmatched
	s.Rejected += o.Rejected
	for k, v := range o.Reasons {
		if s.Reasons == nil {
			s.Reasons = make(map[string]int64)
		}
		s.Reasons[k] += v
	}
}

// MatchRate returns the share of parsed rows that matched a zone.
func (s RunStats) MatchRate() float64 {
	parsed := s.Matched + s.Unmatched
	if parsed == 0 {
		return 0
	}
	return float64(s.Matched) / float64(parsed)
}
