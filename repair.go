package marketdata

import (
	"fmt"
	"log"

	"github.com/etnz/marketdata/date"
)

// Repair returns a copy of t where the cells of instrument in are rebuilt from
// quotes over the whole table range. Other instruments are left untouched.
//
// market_open is raised on the dates where in traded, and never lowered, so
// that a non market day still shows no movement for every instrument.
func Repair(t *Table, in Instrument, quotes []Quote) (*Table, error) {
	rng, ok := t.Range()
	if !ok {
		return nil, fmt.Errorf("cannot repair %s: the store is empty", in.Key)
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("cannot repair %s over %s: %w", in.Key, rng, ErrNoDataAvailable)
	}
	fresh := Normalize([]Instrument{in}, map[string][]Quote{in.Key: quotes}, rng, nil)
	byDate := make(map[date.Date]Row, fresh.Len())
	for _, r := range fresh.Rows {
		byDate[r.Date] = r
	}

	result := t.Clone()
	changed := 0
	for i := range result.Rows {
		row := &result.Rows[i]
		f, ok := byDate[row.Date]
		c, has := f.Cells[in.Key]
		if !ok || !has {
			delete(row.Cells, in.Key)
			continue
		}
		if !row.Cell(in.Key).Equal(c) {
			changed++
		}
		row.Cells[in.Key] = c
		if f.MarketOpen && !row.MarketOpen {
			log.Printf("repair-market-open date=%q instrument=%q", row.Date, in.Key)
			row.MarketOpen = true
		}
	}
	log.Printf("repair instrument=%q rows=%d changed=%d", in.Key, result.Len(), changed)
	return result, nil
}
