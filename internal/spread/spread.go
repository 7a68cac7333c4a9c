// Package spread validates raw two-leg rows and builds canonical spread keys.
package spread

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/spreadwatch/internal/sheet"
)

// Special leg tokens.
const (
	Cash       = "C"
	ThreeMonth = "3M"
)

// epochSentinel is how the sheet renders an empty date cell (serial 0 / 1970).
const epochSentinel = "JAN-70"

var (
	ErrMissingLeg    = errors.New("missing leg")
	ErrEpochSentinel = errors.New("empty date placeholder")
	ErrBadValue      = errors.New("value is not a number")
	ErrBothSpecial   = errors.New("both legs are special tokens")
	ErrBadLeg        = errors.New("leg is not MMM-YY")
	ErrSameLeg       = errors.New("legs are identical")
)

var legPattern = regexp.MustCompile(`^[A-Z]{3}-\d{2}$`)

// Row is a validated spread reading.
type Row struct {
	Leg1 string
	Leg2 string
	Mid  decimal.Decimal
}

// IsSpecial reports whether leg is C or 3M.
func IsSpecial(leg string) bool {
	return leg == Cash || leg == ThreeMonth
}

// NormalizeLeg renders a leg cell as text. Dates become upper-case MMM-YY;
// text is trimmed and upper-cased. It returns "" for empty cells.
func NormalizeLeg(v sheet.Value) string {
	switch v.Kind {
	case sheet.Date:
		return strings.ToUpper(v.Time.Format("Jan-06"))
	case sheet.Text:
		return strings.ToUpper(strings.TrimSpace(v.Text))
	case sheet.Number:
		return v.String()
	default:
		return ""
	}
}

// Parse applies the validation rules in order and returns the normalized row.
// NaN and infinite mids are rejected.
func Parse(leg1, leg2, value sheet.Value) (Row, error) {
	l1, l2 := NormalizeLeg(leg1), NormalizeLeg(leg2)
	if l1 == "" || l2 == "" {
		return Row{}, ErrMissingLeg
	}
	if strings.Contains(l1, epochSentinel) || strings.Contains(l2, epochSentinel) {
		return Row{}, ErrEpochSentinel
	}

	mid, ok := Number(value)
	if !ok || math.IsNaN(mid) || math.IsInf(mid, 0) {
		return Row{}, ErrBadValue
	}

	if IsSpecial(l1) && IsSpecial(l2) {
		return Row{}, ErrBothSpecial
	}
	for _, leg := range []string{l1, l2} {
		if !IsSpecial(leg) && !legPattern.MatchString(leg) {
			return Row{}, ErrBadLeg
		}
	}
	if l1 == l2 {
		return Row{}, ErrSameLeg
	}

	return Row{Leg1: l1, Leg2: l2, Mid: decimal.NewFromFloat(mid)}, nil
}

// Valid reports whether the triple forms a tradable spread.
func Valid(leg1, leg2, value sheet.Value) bool {
	_, err := Parse(leg1, leg2, value)
	return err == nil
}

// Number reads a cell as a float. Text is parsed; dates and empty cells are not numbers.
func Number(v sheet.Value) (float64, bool) {
	switch v.Kind {
	case sheet.Number:
		return v.Num, true
	case sheet.Text:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// OptionalPrice reads a bid/ask/volume cell. Unparseable, NaN and infinite
// values are absent rather than invalid.
func OptionalPrice(v sheet.Value) decimal.NullDecimal {
	f, ok := Number(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(f))
}

// FormatName builds the canonical key: prefix + leg1 + "-" + leg2, with
// hyphens stripped from month-code legs ("C", "FEB-25" -> "C-FEB25").
func FormatName(prefix, leg1, leg2 string) string {
	return prefix + compact(leg1) + "-" + compact(leg2)
}

func compact(leg string) string {
	if IsSpecial(leg) {
		return leg
	}
	return strings.ReplaceAll(leg, "-", "")
}

// Reason returns a short label for a validation error, for logs and metrics.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMissingLeg):
		return "missing_leg"
	case errors.Is(err, ErrEpochSentinel):
		return "epoch_sentinel"
	case errors.Is(err, ErrBadValue):
		return "bad_value"
	case errors.Is(err, ErrBothSpecial):
		return "both_special"
	case errors.Is(err, ErrBadLeg):
		return "bad_leg"
	case errors.Is(err, ErrSameLeg):
		return "same_leg"
	default:
		return "other"
	}
}
