package marketdata

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/etnz/marketdata/date"
	"github.com/shopspring/decimal"
)

// Column names that are not instrument columns.
const (
	ColumnDate       = "date"
	ColumnMarketOpen = "market_open"
)

// This file contains code to persist the table as a CSV file, the durable
// artifact shared with the chart renderer.
//
// The header is: date, every price column, every change column, every percent
// column, market_open. Columns are read by name, so older files with fewer
// columns can be decoded and migrated.

// field identifies what a CSV column holds.
type field struct {
	key  string // instrument key, or deprecated column name
	kind int
}

const (
	fieldIgnored = iota
	fieldDate
	fieldPrice
	fieldChange
	fieldPct
	fieldMarketOpen
	fieldDeprecated
)

// header returns the current column names, in order.
func header(t *Table) []string {
	cols := []string{ColumnDate}
	for _, in := range t.Instruments {
		cols = append(cols, in.Column)
	}
	for _, in := range t.Instruments {
		cols = append(cols, in.ChangeColumn())
	}
	for _, in := range t.Instruments {
		cols = append(cols, in.PctColumn())
	}
	cols = append(cols, slices.Sorted(maps.Keys(t.Deprecated))...)
	return append(cols, ColumnMarketOpen)
}

// fields maps a decoded header to the fields it holds.
func fields(instruments []Instrument, names []string) ([]field, error) {
	known := map[string]field{
		ColumnDate:           {kind: fieldDate},
		ColumnMarketOpen:     {kind: fieldMarketOpen},
		DeprecatedGoldColumn: {key: DeprecatedGoldColumn, kind: fieldDeprecated},
	}
	for _, in := range instruments {
		known[in.Column] = field{in.Key, fieldPrice}
		known[in.ChangeColumn()] = field{in.Key, fieldChange}
		known[in.PctColumn()] = field{in.Key, fieldPct}
	}
	result := make([]field, len(names))
	hasDate := false
	for i, name := range names {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		f, ok := known[name]
		if !ok {
			log.Printf("ignore-column name=%q", name)
			continue
		}
		hasDate = hasDate || f.kind == fieldDate
		result[i] = f
	}
	if !hasDate {
		return nil, fmt.Errorf("missing column %q", ColumnDate)
	}
	return result, nil
}

// parseFlag reads a market_open value as written by this package or by older tools.
func parseFlag(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "1.0", "true":
		return true, nil
	case "0", "0.0", "false", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s value %q", ColumnMarketOpen, s)
}

// DecodeTable reads a CSV table. filename is for error messages only.
//
// Rows are sorted by date. When a date appears twice, the last row wins.
func DecodeTable(r io.Reader, filename string, instruments []Instrument) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // rows are checked against the header below
	names, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: %q is empty", ErrMalformedPersistedStore, filename)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrMalformedPersistedStore, filename, err)
	}
	cols, err := fields(instruments, names)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrMalformedPersistedStore, filename, err)
	}

	t := NewTable(instruments)
	t.columns = make(map[string]bool)
	for i, name := range names {
		if cols[i].kind != fieldIgnored {
			t.columns[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = true
		}
	}

	rows := make(map[date.Date]Row)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%d: %w", ErrMalformedPersistedStore, filename, line, err)
		}
		if len(record) != len(cols) {
			return nil, fmt.Errorf("%w: %s:%d: got %d fields want %d", ErrMalformedPersistedStore, filename, line, len(record), len(cols))
		}
		row, err := decodeRow(t, cols, record)
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%d: %w", ErrMalformedPersistedStore, filename, line, err)
		}
		if _, dup := rows[row.Date]; dup {
			log.Printf("duplicate-date name=%q line=%d date=%q", filename, line, row.Date)
		}
		rows[row.Date] = row
	}

	for _, row := range rows {
		t.Rows = append(t.Rows, row)
	}
	slices.SortFunc(t.Rows, func(a, b Row) int { return a.Date.Compare(b.Date) })
	return t, nil
}

// decodeRow decodes a single record. Deprecated values are recorded into t.
func decodeRow(t *Table, cols []field, record []string) (Row, error) {
	var row Row
	for i, f := range cols {
		if f.kind == fieldDate {
			on, err := date.Parse(strings.TrimSpace(record[i]))
			if err != nil {
				return row, err
			}
			row = NewRow(on)
		}
	}
	for i, f := range cols {
		txt := strings.TrimSpace(record[i])
		switch f.kind {
		case fieldIgnored, fieldDate:
			continue
		case fieldMarketOpen:
			open, err := parseFlag(txt)
			if err != nil {
				return row, err
			}
			row.MarketOpen = open
			continue
		}
		if txt == "" || strings.EqualFold(txt, "nan") {
			continue
		}
		v, err := decimal.NewFromString(txt)
		if err != nil {
			return row, fmt.Errorf("invalid number %q: %w", txt, err)
		}
		c := row.Cells[f.key]
		switch f.kind {
		case fieldPrice:
			c.Price = decimal.NewNullDecimal(v)
		case fieldChange:
			c.Change = decimal.NewNullDecimal(v)
		case fieldPct:
			c.Pct = decimal.NewNullDecimal(v)
		case fieldDeprecated:
			if t.Deprecated == nil {
				t.Deprecated = make(map[string]*date.History[decimal.Decimal])
			}
			h, ok := t.Deprecated[f.key]
			if !ok {
				h = new(date.History[decimal.Decimal])
				t.Deprecated[f.key] = h
			}
			h.Append(row.Date, v)
			continue
		}
		row.Cells[f.key] = c
	}
	return row, nil
}

// formatValue writes v with a fixed number of decimals, or an empty field if null.
func formatValue(v decimal.NullDecimal, places int32) string {
	if !v.Valid {
		return ""
	}
	return v.Decimal.StringFixed(places)
}

// EncodeTable writes t as a CSV table.
func EncodeTable(w io.Writer, t *Table) error {
	if err := t.validate(); err != nil {
		return fmt.Errorf("encode error: %w", err)
	}
	cols := header(t)
	deprecated := cols[1+3*len(t.Instruments) : len(cols)-1]
	writer := csv.NewWriter(w)
	if err := writer.Write(cols); err != nil {
		return err
	}
	record := make([]string, 0, len(cols))
	for _, row := range t.Rows {
		record = append(record[:0], row.Date.String())
		for _, in := range t.Instruments {
			record = append(record, formatValue(row.Cell(in.Key).Price, in.Precision))
		}
		for _, in := range t.Instruments {
			record = append(record, formatValue(row.Cell(in.Key).Change, in.Precision))
		}
		for _, in := range t.Instruments {
			record = append(record, formatValue(row.Cell(in.Key).Pct, PctPrecision))
		}
		for _, name := range deprecated {
			v, ok := t.Deprecated[name].Get(row.Date)
			record = append(record, formatValue(decimal.NullDecimal{Decimal: v, Valid: ok}, 2))
		}
		open := "0"
		if row.MarketOpen {
			open = "1"
		}
		record = append(record, open)
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// LoadStore reads the persisted table at path.
//
// It returns an error wrapping ErrMissingPersistedStore (and fs.ErrNotExist)
// if there is no file yet, and ErrMalformedPersistedStore if it cannot be read.
func LoadStore(path string, instruments []Instrument) (*Table, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", ErrMissingPersistedStore, err)
	}
	if err != nil {
		return nil, fmt.Errorf("load error: cannot open store %q: %w", path, err)
	}
	defer f.Close()
	t, err := DecodeTable(bufio.NewReader(f), path, instruments)
	if err != nil {
		return nil, err
	}
	log.Printf("load-store name=%q rows=%d", path, t.Len())
	return t, nil
}

// WriteStore replaces the persisted table at path with t.
//
// The table is written to a temporary file in the same folder and renamed over
// path, so that the previous file is left intact if anything fails.
func WriteStore(path string, t *Table) (err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("persist error: cannot create temporary file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	w := bufio.NewWriter(f)
	if err := EncodeTable(w, t); err != nil {
		return fmt.Errorf("persist error: cannot encode %q: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("persist error: cannot write %q: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("persist error: cannot sync %q: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("persist error: cannot close %q: %w", tmp, err)
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		return fmt.Errorf("persist error: cannot chmod %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("persist error: cannot replace %q: %w", path, err)
	}
	log.Printf("write-store name=%q rows=%d", path, t.Len())
	return nil
}
