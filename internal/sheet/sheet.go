// Package sheet provides read-only access to spreadsheet cells.
//
// Two connection strategies implement Source: an xlsx workbook on disk and a
// directory (or HTTP base URL) of per-sheet CSV exports. The strategy is chosen
// once by Open; callers only ever see the Source interface.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ErrDisconnected reports that the underlying workbook can no longer be read.
var ErrDisconnected = errors.New("sheet source disconnected")

// Kind is the type of a cell value.
type Kind int

const (
	Empty Kind = iota
	Text
	Number
	Date
)

// Value is one cell. Unreadable cells are Empty.
type Value struct {
	Kind Kind
	Text string
	Num  float64
	Time time.Time
}

func TextValue(s string) Value    { return Value{Kind: Text, Text: s} }
func NumberValue(f float64) Value { return Value{Kind: Number, Num: f} }
func DateValue(t time.Time) Value { return Value{Kind: Date, Time: t} }
func (v Value) IsEmpty() bool     { return v.Kind == Empty }

// String renders the value the way the sheet would display it.
func (v Value) String() string {
	switch v.Kind {
	case Text:
		return v.Text
	case Number:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case Date:
		return v.Time.Format("2006-01-02")
	default:
		return ""
	}
}

// Source reads cells from a live workbook.
type Source interface {
	// Refresh picks up the latest saved state of the workbook.
	// It returns an error wrapping ErrDisconnected when the workbook is gone.
	Refresh(ctx context.Context) error
	ReadCell(sheet, addr string) Value
	ReadRange(sheet, start string, rows, cols int) [][]Value
	Close() error
}

// Config selects and parameterizes a Source.
type Config struct {
	Kind           string // "xlsx" or "csv"
	Path           string // workbook file, CSV directory, or http(s) base URL
	Timeout        time.Duration
	MaxRetries     int
	RetryDelayBase time.Duration
}

// Open constructs the Source named by cfg.Kind and performs the first Refresh.
func Open(ctx context.Context, cfg Config) (Source, error) {
	var src Source
	switch strings.ToLower(cfg.Kind) {
	case "xlsx":
		src = NewWorkbook(cfg.Path)
	case "csv":
		src = NewCSV(cfg.Path, cfg.Timeout, cfg.MaxRetries, cfg.RetryDelayBase)
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
	if err := src.Refresh(ctx); err != nil {
		_ = src.Close()
		return nil, err
	}
	return src, nil
}

// Parse converts a displayed cell string into a typed Value.
// Numbers become Number, recognised calendar dates become Date, anything else is Text.
func Parse(raw string) Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Value{}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return NumberValue(f)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateValue(t)
		}
	}
	return TextValue(s)
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"02/01/2006",
	"1/2/06",
}

// readRange reads a rectangular block through readCell, addressing columns
// with excelize's cell-name helpers so multi-letter columns work.
func readRange(readCell func(sheet, addr string) Value, sheet, start string, rows, cols int) [][]Value {
	out := make([][]Value, rows)
	for r := range out {
		out[r] = make([]Value, cols)
	}
	col, row, err := excelize.CellNameToCoordinates(start)
	if err != nil {
		return out
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			addr, err := excelize.CoordinatesToCellName(col+c, row+r)
			if err != nil {
				continue
			}
			out[r][c] = readCell(sheet, addr)
		}
	}
	return out
}

// CellName joins a column name and a row number into an address like "AA4".
func CellName(column string, row int) (string, error) {
	n, err := excelize.ColumnNameToNumber(column)
	if err != nil {
		return "", err
	}
	return excelize.CoordinatesToCellName(n, row)
}
