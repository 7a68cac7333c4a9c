package spread

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rewired-gh/spreadwatch/internal/sheet"
)

func TestParse(t *testing.T) {
	text := sheet.TextValue
	num := sheet.NumberValue
	feb25 := sheet.DateValue(time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC))
	epoch := sheet.DateValue(time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name       string
		leg1, leg2 sheet.Value
		value      sheet.Value
		wantErr    error
		wantLegs   [2]string
	}{
		{"cash to month", text("C"), text("FEB-25"), num(100), nil, [2]string{"C", "FEB-25"}},
		{"date leg normalized", text("3M"), feb25, num(1.5), nil, [2]string{"3M", "FEB-25"}},
		{"lower case text leg", text("jan-25"), text(" FEB-25 "), num(2), nil, [2]string{"JAN-25", "FEB-25"}},
		{"numeric text value", text("JAN-25"), text("FEB-25"), text("12.75"), nil, [2]string{"JAN-25", "FEB-25"}},
		{"zero value is valid", text("JAN-25"), text("FEB-25"), num(0), nil, [2]string{"JAN-25", "FEB-25"}},
		{"missing leg1", sheet.Value{}, text("FEB-25"), num(1), ErrMissingLeg, [2]string{}},
		{"missing leg2", text("C"), sheet.Value{}, num(1), ErrMissingLeg, [2]string{}},
		{"epoch date", epoch, text("FEB-25"), num(1), ErrEpochSentinel, [2]string{}},
		{"epoch text", text("C"), text("JAN-70"), num(1), ErrEpochSentinel, [2]string{}},
		{"missing value", text("C"), text("FEB-25"), sheet.Value{}, ErrBadValue, [2]string{}},
		{"text value", text("C"), text("FEB-25"), text("n/a"), ErrBadValue, [2]string{}},
		{"NaN value", text("C"), text("FEB-25"), num(math.NaN()), ErrBadValue, [2]string{}},
		{"date value", text("C"), text("FEB-25"), feb25, ErrBadValue, [2]string{}},
		{"both special", text("C"), text("3M"), num(1), ErrBothSpecial, [2]string{}},
		{"bad leg format", text("C"), text("FEB2025"), num(1), ErrBadLeg, [2]string{}},
		{"numeric leg", num(45000), text("FEB-25"), num(1), ErrBadLeg, [2]string{}},
		{"same month", text("FEB-25"), text("FEB-25"), num(1), ErrSameLeg, [2]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := Parse(tt.leg1, tt.leg2, tt.value)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
				}
				if Valid(tt.leg1, tt.leg2, tt.value) {
					t.Error("Valid() = true for rejected row")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() unexpected error: %v", err)
			}
			if row.Leg1 != tt.wantLegs[0] || row.Leg2 != tt.wantLegs[1] {
				t.Errorf("legs = %s/%s, want %s/%s", row.Leg1, row.Leg2, tt.wantLegs[0], tt.wantLegs[1])
			}
		})
	}
}

func TestFormatName(t *testing.T) {
	tests := []struct {
		prefix, leg1, leg2 string
		want               string
	}{
		{"AHD", "C", "FEB-25", "AHDC-FEB25"},
		{"AHD", "3M", "DEC-26", "AHD3M-DEC26"},
		{"AHD", "JAN-25", "3M", "AHDJAN25-3M"},
		{"CAD", "JAN-25", "FEB-25", "CADJAN25-FEB25"},
		{"", "MAR-25", "APR-25", "MAR25-APR25"},
	}
	for _, tt := range tests {
		if got := FormatName(tt.prefix, tt.leg1, tt.leg2); got != tt.want {
			t.Errorf("FormatName(%q, %q, %q) = %q, want %q", tt.prefix, tt.leg1, tt.leg2, got, tt.want)
		}
	}
}

func TestOptionalPrice(t *testing.T) {
	if p := OptionalPrice(sheet.NumberValue(math.NaN())); p.Valid {
		t.Error("NaN bid should be absent")
	}
	if p := OptionalPrice(sheet.Value{}); p.Valid {
		t.Error("empty bid should be absent")
	}
	p := OptionalPrice(sheet.NumberValue(0))
	if !p.Valid || !p.Decimal.IsZero() {
		t.Errorf("zero bid should be present and zero, got %+v", p)
	}
	p = OptionalPrice(sheet.TextValue("99.5"))
	if !p.Valid || p.Decimal.String() != "99.5" {
		t.Errorf("text bid = %+v, want 99.5", p)
	}
}

func TestReason(t *testing.T) {
	if got := Reason(ErrSameLeg); got != "same_leg" {
		t.Errorf("Reason(ErrSameLeg) = %q", got)
	}
	if got := Reason(errors.New("boom")); got != "other" {
		t.Errorf("Reason(other) = %q", got)
	}
}
