package monitor

import (
	"time"
)

// Tracker is the table of live price points for one monitoring session.
// Iteration follows insertion order so attribution is deterministic.
type Tracker struct {
	points map[string]*PricePoint
	order  []string
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{points: make(map[string]*PricePoint)}
}

func (t *Tracker) Get(key string) (*PricePoint, bool) {
	p, ok := t.points[key]
	return p, ok
}

// Add inserts p, replacing any point with the same key.
func (t *Tracker) Add(p *PricePoint) *PricePoint {
	if _, exists := t.points[p.Key]; !exists {
		t.order = append(t.order, p.Key)
	}
	t.points[p.Key] = p
	return p
}

func (t *Tracker) Len() int {
	return len(t.points)
}

// Each calls fn for every point in insertion order until fn returns false.
func (t *Tracker) Each(fn func(*PricePoint) bool) {
	for _, key := range t.order {
		if !fn(t.points[key]) {
			return
		}
	}
}

// EvictStale drops points not seen since now-maxAge and returns how many were removed.
func (t *Tracker) EvictStale(now time.Time, maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	kept := t.order[:0]
	removed := 0
	for _, key := range t.order {
		if now.Sub(t.points[key].LastSeen) > maxAge {
			delete(t.points, key)
			removed++
			continue
		}
		kept = append(kept, key)
	}
	t.order = kept
	return removed
}
