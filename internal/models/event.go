// Package models defines the core domain entities: quotes, confirmed change events, and persisted snapshots.
package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// EventKind distinguishes a first sighting from a confirmed change.
type EventKind string

const (
	KindNew    EventKind = "NEW"
	KindChange EventKind = "CHG"
)

// SpreadType tells whether a spread comes from the primary section rows.
type SpreadType string

const (
	Primary SpreadType = "PRIMARY"
	Derived SpreadType = "DERIVED"
)

// ChangeEvent is an immutable record of a confirmed price change for one spread.
// Old is the last recorded quote, not the most recent raw reading.
type ChangeEvent struct {
	Timestamp   time.Time
	SpreadKey   string
	Leg1        string
	Leg2        string
	Kind        EventKind
	Old         Quote
	New         Quote
	BidVolume   decimal.NullDecimal
	AskVolume   decimal.NullDecimal
	Dependency  string
	DaysBetween *int
	SpreadType  SpreadType
}

// Snapshot is the persisted form of a ChangeEvent. Absent prices are stored as 0.0
// so the store's columns stay uniformly numeric.
type Snapshot struct {
	ID          string
	Timestamp   time.Time
	SpreadName  string
	Prompt1     string
	Prompt2     string
	Kind        EventKind
	SpreadType  SpreadType
	OldMidpoint float64
	NewMidpoint float64
	OldBid      float64
	NewBid      float64
	OldAsk      float64
	NewAsk      float64
	BidVolume   float64
	AskVolume   float64
	Dependency  string
	DaysBetween *int
}

// ToSnapshot converts the event into its persisted form under the given ID.
// A NEW event has no prior value, so its old fields mirror the new ones.
func (e ChangeEvent) ToSnapshot(id string) Snapshot {
	old := e.Old
	if e.Kind == KindNew {
		old = e.New
	}
	return Snapshot{
		ID:          id,
		Timestamp:   e.Timestamp,
		SpreadName:  e.SpreadKey,
		Prompt1:     e.Leg1,
		Prompt2:     e.Leg2,
		Kind:        e.Kind,
		SpreadType:  e.SpreadType,
		OldMidpoint: Float(old.Mid),
		NewMidpoint: Float(e.New.Mid),
		OldBid:      Float(old.Bid),
		NewBid:      Float(e.New.Bid),
		OldAsk:      Float(old.Ask),
		NewAsk:      Float(e.New.Ask),
		BidVolume:   Float(e.BidVolume),
		AskVolume:   Float(e.AskVolume),
		Dependency:  e.Dependency,
		DaysBetween: e.DaysBetween,
	}
}

// Change returns NewMidpoint - OldMidpoint, computed in decimal so stored
// prices like 100.02 do not pick up binary float noise.
func (s Snapshot) Change() decimal.Decimal {
	return decimal.NewFromFloat(s.NewMidpoint).Sub(decimal.NewFromFloat(s.OldMidpoint))
}

// Validate checks snapshot field constraints before it is written.
func (s *Snapshot) Validate() error {
	if s.ID == "" {
		return errors.New("snapshot ID must not be empty")
	}
	if s.SpreadName == "" {
		return errors.New("spread name must not be empty")
	}
	if s.Kind != KindNew && s.Kind != KindChange {
		return errors.New("kind must be NEW or CHG")
	}
	if s.SpreadType != Primary && s.SpreadType != Derived {
		return errors.New("spread type must be PRIMARY or DERIVED")
	}
	if s.Timestamp.IsZero() {
		return errors.New("timestamp must be set")
	}
	if s.DaysBetween != nil && *s.DaysBetween < 0 {
		return errors.New("days between must not be negative")
	}
	return nil
}
