package sheet

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Workbook reads an .xlsx/.xlsm file saved by the spreadsheet application.
// The file is re-opened whenever its modification time changes.
type Workbook struct {
	path    string
	file    *excelize.File
	modTime time.Time
}

// NewWorkbook returns a Workbook for path. Nothing is opened until Refresh.
func NewWorkbook(path string) *Workbook {
	return &Workbook{path: path}
}

func (w *Workbook) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	if w.file != nil && info.ModTime().Equal(w.modTime) {
		return nil
	}

	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return fmt.Errorf("%w: failed to open workbook: %v", ErrDisconnected, err)
	}
	if w.file != nil {
		_ = w.file.Close()
	}
	w.file = f
	w.modTime = info.ModTime()
	return nil
}

func (w *Workbook) ReadCell(sheet, addr string) Value {
	if w.file == nil {
		return Value{}
	}
	raw, err := w.file.GetCellValue(sheet, addr, excelize.Options{RawCellValue: true})
	if err != nil || strings.TrimSpace(raw) == "" {
		return Value{}
	}
	num, numErr := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if numErr != nil {
		return Parse(raw)
	}

	// Dates are stored as serial numbers; only the display format tells them apart.
	shown, err := w.file.GetCellValue(sheet, addr)
	if err == nil && looksLikeDate(shown) {
		if t, err := excelize.ExcelDateToTime(num, false); err == nil {
			return DateValue(t)
		}
	}
	return NumberValue(num)
}

func (w *Workbook) ReadRange(sheet, start string, rows, cols int) [][]Value {
	return readRange(w.ReadCell, sheet, start, rows, cols)
}

func (w *Workbook) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

var displayDateLayouts = []string{
	"Jan-06",
	"Jan-2006",
	"02-Jan-06",
	"2-Jan-06",
	"01-02-06",
	"1/2/06",
	"1/2/06 15:04",
	"01/02/2006",
	"02/01/2006",
	"2006-01-02",
}

func looksLikeDate(shown string) bool {
	s := strings.TrimSpace(shown)
	if s == "" {
		return false
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return false
	}
	for _, layout := range displayDateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
