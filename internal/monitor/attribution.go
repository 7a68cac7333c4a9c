package monitor

import (
	"time"
)

// attribute returns the key of the first primary spread that changed within one
// poll interval of now and has not been recorded yet, or "" if none did.
// First sightings still waiting on their NEW commit never count as moves.
// Temporal coincidence is the only evidence; the first match wins.
func (m *Monitor) attribute(now time.Time) string {
	cutoff := now.Add(-m.config.PollInterval)
	var dependency string
	m.tracker.Each(func(p *PricePoint) bool {
		if p.IsPrimary && !p.IsRecorded && !p.Pending && !p.UnchangedSince.Before(cutoff) {
			dependency = p.Key
			return false
		}
		return true
	})
	return dependency
}
