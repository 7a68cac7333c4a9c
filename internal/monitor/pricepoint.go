package monitor

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/spreadwatch/internal/models"
)

// Rules parameterize the debounce state machine.
type Rules struct {
	MinChange         decimal.Decimal
	StabilityDuration time.Duration
}

// PricePoint tracks one spread's readings and decides when a new value has settled.
//
// Current is the latest reading; Baseline is the last quote actually persisted.
// Changes are detected against Current, but events compare against Baseline, so
// oscillations inside the stability window collapse into one event.
type PricePoint struct {
	Key            string
	Current        models.Quote
	Baseline       models.Quote
	FirstSeen      time.Time
	LastSeen       time.Time
	UnchangedSince time.Time
	IsStable       bool
	IsRecorded     bool
	IsPrimary      bool
	// Pending marks a first sighting whose NEW snapshot is not committed yet.
	Pending    bool
	Dependency string
}

// NewPricePoint starts tracking a spread in the unstable, unrecorded state.
// The baseline stays empty until MarkRecorded.
func NewPricePoint(key string, q models.Quote, now time.Time, primary bool) *PricePoint {
	return &PricePoint{
		Key:            key,
		Current:        q,
		FirstSeen:      now,
		LastSeen:       now,
		UnchangedSince: now,
		IsPrimary:      primary,
	}
}

// Update feeds a new reading. It returns true exactly once per settle: on the
// poll where the point turns stable without having been recorded. The returned
// quote is always the recorded baseline, never the previous raw reading.
// A non-empty dependency replaces the attribution on a change; an empty one
// keeps the previous attribution.
func (p *PricePoint) Update(q models.Quote, now time.Time, dependency string, rules Rules) (bool, models.Quote) {
	p.LastSeen = now

	if q.Differs(p.Current, rules.MinChange) {
		p.Current = q
		p.UnchangedSince = now
		p.IsStable = false
		p.IsRecorded = false
		if dependency != "" {
			p.Dependency = dependency
		}
		return false, p.Baseline
	}

	wasStable := p.IsStable
	p.IsStable = now.Sub(p.UnchangedSince) >= rules.StabilityDuration
	return p.IsStable && !wasStable && !p.IsRecorded, p.Baseline
}

// MarkRecorded advances the baseline to the current quote. Call it only once
// the corresponding snapshot is durably committed.
func (p *PricePoint) MarkRecorded() {
	p.IsRecorded = true
	p.Pending = false
	p.Baseline = p.Current
}

// Acknowledge marks the settled value as handled without moving the baseline.
func (p *PricePoint) Acknowledge() {
	p.IsRecorded = true
}

// Rearm lets the stability edge fire again on the next unchanged reading.
func (p *PricePoint) Rearm() {
	p.IsStable = false
}

// HasBaseline reports whether a non-zero mid has ever been recorded.
func (p *PricePoint) HasBaseline() bool {
	return p.Baseline.Mid.Valid && !p.Baseline.Mid.Decimal.IsZero()
}
