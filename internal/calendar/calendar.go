// Package calendar resolves delivery-period tokens to prompt dates.
//
// Month codes ("FEB-25" or "FEB25") resolve to the third Wednesday of the
// month, the monthly prompt convention. The cash ("C") and three-month ("3M")
// dates move daily and are supplied from the reference sheet.
package calendar

import (
	"strings"
	"time"

	"github.com/rewired-gh/spreadwatch/internal/spread"
)

// Service resolves period tokens. The zero value knows month codes only.
type Service struct {
	cash       time.Time
	threeMonth time.Time
}

// New returns a Service with the given reference dates. Zero dates are unknown.
func New(cash, threeMonth time.Time) *Service {
	return &Service{cash: dateOnly(cash), threeMonth: dateOnly(threeMonth)}
}

// SetReferenceDates replaces the cash and 3M dates. Zero values leave the current date in place.
func (s *Service) SetReferenceDates(cash, threeMonth time.Time) {
	if !cash.IsZero() {
		s.cash = dateOnly(cash)
	}
	if !threeMonth.IsZero() {
		s.threeMonth = dateOnly(threeMonth)
	}
}

// ResolvePeriod returns the calendar date for token.
func (s *Service) ResolvePeriod(token string) (time.Time, bool) {
	token = strings.ToUpper(strings.TrimSpace(token))
	switch token {
	case spread.Cash:
		return s.cash, !s.cash.IsZero()
	case spread.ThreeMonth:
		return s.threeMonth, !s.threeMonth.IsZero()
	}

	month, err := time.Parse("Jan06", strings.ReplaceAll(token, "-", ""))
	if err != nil {
		return time.Time{}, false
	}
	return ThirdWednesday(month.Year(), month.Month()), true
}

// DaysBetween returns the absolute number of days between two periods.
func (s *Service) DaysBetween(a, b string) (int, bool) {
	da, ok := s.ResolvePeriod(a)
	if !ok {
		return 0, false
	}
	db, ok := s.ResolvePeriod(b)
	if !ok {
		return 0, false
	}
	days := int(db.Sub(da).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days, true
}

// ThirdWednesday returns the third Wednesday of the given month in UTC.
func ThirdWednesday(year int, month time.Month) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(time.Wednesday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+14)
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
