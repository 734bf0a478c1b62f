package marketdata

import (
	"fmt"
	"log"
	"slices"

	"github.com/etnz/marketdata/date"
)

// Append returns a copy of t with one new row on day, built from the latest
// quote of each instrument keyed by instrument key.
//
// The fetched close is always written, and its change is computed against the
// last persisted price of the instrument. Rows are dated by run date while a
// close can lag it by a day, so a close is a new observation when it is dated
// after the last persisted row or when its value differs from the persisted
// price. The row is a market day if at least one close is a new observation.
// Instruments without quote get a null cell.
//
// If the last persisted row is already on day, it is recomputed in place so
// that dates stay unique.
func Append(t *Table, latest map[string]Quote, day date.Date) (*Table, error) {
	result := t.Clone()
	if last, ok := result.Last(); ok {
		if last.Date.After(day) {
			return nil, fmt.Errorf("cannot append %s: store already ends on %s", day, last.Date)
		}
		if last.Date == day {
			log.Printf("replace-row date=%q", day)
			result.Rows = result.Rows[:len(result.Rows)-1]
		}
	}
	previous, hasPrevious := result.Last()

	row := NewRow(day)
	for _, in := range result.Instruments {
		q, ok := latest[in.Key]
		if !ok {
			continue
		}
		price := in.Round(q.Close)
		prev, hasPrev := result.LastPrice(in.Key)
		c := move(in, price, prev, hasPrev)
		row.Cells[in.Key] = c
		if !hasPrevious || q.Date.After(previous.Date) || !c.Change.Decimal.IsZero() {
			row.MarketOpen = true
		}
	}
	result.Rows = append(result.Rows, row)
	return result, nil
}

// Overwrite returns a copy of t where every row inside window is replaced by
// the rows of fresh. Rows outside window are kept untouched.
//
// Instruments listed in keep were not refreshed: their persisted cells are kept
// on the replaced dates, and so is the market day flag they contributed to.
func Overwrite(t *Table, fresh *Table, window date.Range, keep ...string) *Table {
	result := &Table{
		Instruments: t.Instruments,
		Deprecated:  t.Deprecated,
		columns:     t.columns,
		Rows:        make([]Row, 0, len(t.Rows)+len(fresh.Rows)),
	}
	old := make(map[date.Date]Row)
	for _, r := range t.Rows {
		if window.Contains(r.Date) {
			old[r.Date] = r
			continue
		}
		result.Rows = append(result.Rows, r.Clone())
	}
	for _, r := range fresh.Rows {
		r = r.Clone()
		if prior, ok := old[r.Date]; ok && len(keep) > 0 {
			for _, key := range keep {
				if c, ok := prior.Cells[key]; ok {
					r.Cells[key] = c
				} else {
					delete(r.Cells, key)
				}
			}
			r.MarketOpen = r.MarketOpen || prior.MarketOpen
		}
		result.Rows = append(result.Rows, r)
	}
	slices.SortFunc(result.Rows, func(a, b Row) int { return a.Date.Compare(b.Date) })
	return result
}
