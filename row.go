package marketdata

import (
	"fmt"
	"maps"

	"github.com/etnz/marketdata/date"
	"github.com/shopspring/decimal"
)

// Cell holds the values of one instrument on one row. A null price means the
// instrument had no known value yet, and then change and percent are null too.
type Cell struct {
	Price  decimal.NullDecimal
	Change decimal.NullDecimal
	Pct    decimal.NullDecimal
}

// Equal reports whether both cells hold the same values.
func (c Cell) Equal(o Cell) bool {
	return nullEqual(c.Price, o.Price) && nullEqual(c.Change, o.Change) && nullEqual(c.Pct, o.Pct)
}

func nullEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

// valued returns a cell with a price and its day-over-day movement.
func valued(price, change, pct decimal.Decimal) Cell {
	return Cell{
		Price:  decimal.NewNullDecimal(price),
		Change: decimal.NewNullDecimal(change),
		Pct:    decimal.NewNullDecimal(pct),
	}
}

// still returns a cell showing price with no movement.
func still(price decimal.Decimal) Cell { return valued(price, decimal.Zero, decimal.Zero) }

// Row is one calendar day of the table.
type Row struct {
	Date       date.Date
	Cells      map[string]Cell // by instrument key
	MarketOpen bool            // at least one instrument had a real quote that day
}

// NewRow returns an empty row for day.
func NewRow(day date.Date) Row { return Row{Date: day, Cells: make(map[string]Cell)} }

// Cell returns the cell of the instrument key, the zero Cell (all null) if absent.
func (r Row) Cell(key string) Cell { return r.Cells[key] }

// Clone returns a copy of r that does not share its cells.
func (r Row) Clone() Row {
	r.Cells = maps.Clone(r.Cells)
	if r.Cells == nil {
		r.Cells = make(map[string]Cell)
	}
	return r
}

// Table is the in-memory form of the persisted store: rows ordered by date,
// with unique dates.
type Table struct {
	Instruments []Instrument
	Rows        []Row

	// Deprecated holds the values of columns read from an older schema by column name.
	Deprecated map[string]*date.History[decimal.Decimal]

	// columns records the columns present in the decoded file, nil for a table built in memory.
	columns map[string]bool
}

// NewTable returns an empty table for the given instruments.
func NewTable(instruments []Instrument) *Table {
	return &Table{Instruments: instruments}
}

// HasColumn reports whether the decoded file had that column.
// Tables built in memory have every current column.
func (t *Table) HasColumn(name string) bool {
	if t.columns == nil {
		return name != DeprecatedGoldColumn
	}
	return t.columns[name]
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Last returns the last row of the table.
func (t *Table) Last() (Row, bool) {
	if len(t.Rows) == 0 {
		return Row{}, false
	}
	return t.Rows[len(t.Rows)-1], true
}

// Range returns the range covering every row of the table.
func (t *Table) Range() (date.Range, bool) {
	if len(t.Rows) == 0 {
		return date.Range{}, false
	}
	return date.NewRange(t.Rows[0].Date, t.Rows[len(t.Rows)-1].Date), true
}

// LastPrice returns the most recent non-null price of the instrument key.
func (t *Table) LastPrice(key string) (decimal.Decimal, bool) {
	for i := len(t.Rows) - 1; i >= 0; i-- {
		if c := t.Rows[i].Cell(key); c.Price.Valid {
			return c.Price.Decimal, true
		}
	}
	return decimal.Decimal{}, false
}

// Clone returns a deep enough copy of t so that rows can be mutated independently.
func (t *Table) Clone() *Table {
	c := &Table{
		Instruments: t.Instruments,
		Rows:        make([]Row, len(t.Rows)),
		Deprecated:  maps.Clone(t.Deprecated),
		columns:     maps.Clone(t.columns),
	}
	for i, r := range t.Rows {
		c.Rows[i] = r.Clone()
	}
	return c
}

// validate checks the table invariant: dates strictly increasing.
func (t *Table) validate() error {
	for i := 1; i < len(t.Rows); i++ {
		if !t.Rows[i].Date.After(t.Rows[i-1].Date) {
			return fmt.Errorf("date %s follows %s: dates must be unique and increasing", t.Rows[i].Date, t.Rows[i-1].Date)
		}
	}
	return nil
}
