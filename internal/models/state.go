package models

import (
	"github.com/shopspring/decimal"
)

// Quote is a mid/bid/ask triple. Each leg may be absent (Valid=false),
// which is distinct from a zero price.
type Quote struct {
	Mid decimal.NullDecimal
	Bid decimal.NullDecimal
	Ask decimal.NullDecimal
}

// Price wraps a float as a present price.
func Price(f float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromFloat(f))
}

// Float returns the float value of d, or 0 when absent.
func Float(d decimal.NullDecimal) float64 {
	if !d.Valid {
		return 0
	}
	return d.Decimal.InexactFloat64()
}

// IsZero reports whether the price is present and exactly zero.
func IsZero(d decimal.NullDecimal) bool {
	return d.Valid && d.Decimal.IsZero()
}

// Moved reports whether two optional prices differ by at least minChange.
// A transition between absent and present always counts as moved.
func Moved(a, b decimal.NullDecimal, minChange decimal.Decimal) bool {
	if a.Valid != b.Valid {
		return true
	}
	if !a.Valid {
		return false
	}
	return a.Decimal.Sub(b.Decimal).Abs().GreaterThanOrEqual(minChange)
}

// Differs reports whether any leg of q moved by at least minChange relative to other.
func (q Quote) Differs(other Quote, minChange decimal.Decimal) bool {
	return Moved(q.Mid, other.Mid, minChange) ||
		Moved(q.Bid, other.Bid, minChange) ||
		Moved(q.Ask, other.Ask, minChange)
}
