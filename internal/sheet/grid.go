package sheet

import (
	"context"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Grid is an in-memory set of sheets keyed by sheet name then cell address.
// The CSV source loads into a Grid; tests build one directly.
type Grid struct {
	sheets map[string]map[string]Value
}

// NewGrid returns an empty grid.
func NewGrid() *Grid {
	return &Grid{sheets: make(map[string]map[string]Value)}
}

// Set stores v at addr on sheet. Addresses are case-insensitive.
func (g *Grid) Set(sheet, addr string, v Value) {
	cells, ok := g.sheets[sheet]
	if !ok {
		cells = make(map[string]Value)
		g.sheets[sheet] = cells
	}
	cells[strings.ToUpper(addr)] = v
}

// SetRow stores values left to right starting at column col on the given row.
func (g *Grid) SetRow(sheet string, col string, row int, values ...Value) {
	start, err := excelize.ColumnNameToNumber(col)
	if err != nil {
		return
	}
	for i, v := range values {
		addr, err := excelize.CoordinatesToCellName(start+i, row)
		if err != nil {
			return
		}
		g.Set(sheet, addr, v)
	}
}

// Clear removes every cell.
func (g *Grid) Clear() {
	g.sheets = make(map[string]map[string]Value)
}

func (g *Grid) Refresh(context.Context) error { return nil }

func (g *Grid) ReadCell(sheet, addr string) Value {
	return g.sheets[sheet][strings.ToUpper(addr)]
}

func (g *Grid) ReadRange(sheet, start string, rows, cols int) [][]Value {
	return readRange(g.ReadCell, sheet, start, rows, cols)
}

func (g *Grid) Close() error { return nil }
