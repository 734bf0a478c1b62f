package marketdata

import (
	"github.com/etnz/marketdata/date"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// move returns the cell of a trading day: price and its movement against the
// previous trading day value. Without a previous value the movement is zero.
func move(in Instrument, price, prev decimal.Decimal, hasPrev bool) Cell {
	if !hasPrev {
		return still(price)
	}
	change := in.Round(price.Sub(prev))
	return valued(price, change, percent(change, prev))
}

// percent returns change/prev in percent, 0 when prev is 0.
func percent(change, prev decimal.Decimal) decimal.Decimal {
	if prev.IsZero() {
		return decimal.Zero
	}
	return change.Div(prev).Mul(hundred).Round(PctPrecision)
}

// rounded returns the history of quotes rounded to the instrument precision.
func rounded(in Instrument, quotes []Quote) *date.History[decimal.Decimal] {
	h := new(date.History[decimal.Decimal])
	for _, q := range quotes {
		h.Append(q.Date, in.Round(q.Close))
	}
	return h
}

// Normalize builds one row per calendar day of window from the sparse quotes of
// each instrument, keyed by instrument key.
//
// Quotes before window.From serve as warmup: they provide the previous trading
// day value of the first trading days and the forward-filled value of the
// first calendar days. Quotes after window.To are ignored. baseline, which can
// be nil, provides a previous value for instruments without any warmup quote,
// typically the last persisted price.
//
// Leading days where no instrument has a value are dropped.
func Normalize(instruments []Instrument, quotes map[string][]Quote, window date.Range, baseline map[string]decimal.Decimal) *Table {
	type series struct {
		prices *date.History[decimal.Decimal]
		moves  map[date.Date]Cell // trading days only
	}
	all := make([]series, len(instruments))
	trading := make([]*date.History[decimal.Decimal], 0, len(instruments))

	// Changes are computed on each instrument's own trading days.
	for i, in := range instruments {
		prices := rounded(in, quotes[in.Key])
		s := series{prices: new(date.History[decimal.Decimal]), moves: make(map[date.Date]Cell)}
		prev, hasPrev := baseline[in.Key]
		for on, price := range prices.Values() {
			if on.After(window.To) {
				break
			}
			s.prices.Append(on, price)
			s.moves[on] = move(in, price, prev, hasPrev)
			prev, hasPrev = price, true
		}
		all[i] = s
		trading = append(trading, s.prices)
	}

	open := make(map[date.Date]bool)
	for on := range date.Iterate(trading...) {
		if window.Contains(on) {
			open[on] = true
		}
	}

	t := NewTable(instruments)
	for day := range window.Days() {
		row := NewRow(day)
		row.MarketOpen = open[day]
		known := false
		for i, in := range instruments {
			s := all[i]
			if c, ok := s.moves[day]; ok {
				row.Cells[in.Key] = c
				known = true
				continue
			}
			// Non trading day: forward-fill with no movement.
			if price, ok := s.prices.ValueAsOf(day); ok {
				row.Cells[in.Key] = still(price)
				known = true
			} else if price, ok := baseline[in.Key]; ok {
				row.Cells[in.Key] = still(price)
				known = true
			}
		}
		if !known && len(t.Rows) == 0 {
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
