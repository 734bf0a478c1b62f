package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/etnz/marketdata/date"
	"github.com/shopspring/decimal"
)

// Recompute recomputes the change and percent of instrument in over the rows of t.
//
// Only market days move: the change is taken against the price of the nearest
// earlier market day. Other days keep their price with no movement.
func Recompute(t *Table, in Instrument) {
	var prev decimal.Decimal
	hasPrev := false
	for i := range t.Rows {
		row := &t.Rows[i]
		c := row.Cell(in.Key)
		if !c.Price.Valid {
			delete(row.Cells, in.Key)
			continue
		}
		price := c.Price.Decimal
		if !row.MarketOpen {
			row.Cells[in.Key] = still(price)
			continue
		}
		row.Cells[in.Key] = move(in, price, prev, hasPrev)
		prev, hasPrev = price, true
	}
}

// Migrate upgrades a table decoded from an older schema to the current one.
//
//   - Files without market_open get it from the calendar: weekdays are market days.
//   - The deprecated gold_usd column is converted into gold_jpy with the USD/JPY
//     history fetched over the table range, and dropped. Only rows carrying a
//     gold_usd value are rewritten.
//   - Every price column without its change columns gets them recomputed.
//
// Migrate always returns a usable table. When the USD/JPY history cannot be
// retrieved, gold_usd values are copied to gold_jpy as they are, unless the
// file already had gold_jpy, gold_usd is kept for the next run, and the
// returned error wraps ErrSchemaMigrationFailed.
func Migrate(ctx context.Context, t *Table, r Retriever, warmup int) (*Table, error) {
	result := t.Clone()
	if result.columns == nil {
		return result, nil // already current
	}
	var errs error

	if !result.HasColumn(ColumnMarketOpen) {
		log.Printf("migrate-market-open rows=%d", len(result.Rows))
		for i := range result.Rows {
			result.Rows[i].MarketOpen = !result.Rows[i].Date.IsWeekend()
		}
	}

	recompute := make(map[string]bool)
	for _, in := range result.Instruments {
		if result.HasColumn(in.Column) && !(result.HasColumn(in.ChangeColumn()) && result.HasColumn(in.PctColumn())) {
			recompute[in.Key] = true
		}
	}

	if legacy, ok := result.Deprecated[DeprecatedGoldColumn]; ok {
		gold, err := Lookup(result.Instruments, Gold.Key)
		if err != nil {
			return nil, err
		}
		if err := deriveGold(ctx, result, gold, legacy, r, warmup); err != nil {
			// gold_usd is kept so that the next run retries.
			log.Printf("migrate-gold-failed err=%q fallback=rename", err)
			if !result.HasColumn(gold.Column) {
				rename(result, gold, legacy)
				if !result.HasColumn(gold.ChangeColumn()) {
					recompute[gold.Key] = true
				}
			}
			errs = errors.Join(errs, fmt.Errorf("%w: %s to %s: %w", ErrSchemaMigrationFailed, DeprecatedGoldColumn, gold.Column, err))
		} else {
			recompute[gold.Key] = true
			delete(result.Deprecated, DeprecatedGoldColumn)
		}
	}

	for _, in := range result.Instruments {
		if recompute[in.Key] {
			log.Printf("migrate-recompute instrument=%q", in.Key)
			Recompute(result, in)
		}
	}
	result.columns = nil
	return result, errs
}

// deriveGold fills the gold cells of the rows with a USD price from the USD/JPY history.
func deriveGold(ctx context.Context, t *Table, gold Instrument, usd *date.History[decimal.Decimal], r Retriever, warmup int) error {
	rng, ok := t.Range()
	if !ok {
		return nil
	}
	if r == nil {
		return fmt.Errorf("no retriever for %s", gold.Derive.Quote)
	}
	rng = rng.Extend(warmup)
	quotes, err := r.Fetch(ctx, gold.Derive.Quote, rng.From, rng.To)
	if err != nil {
		return err
	}
	if len(quotes) == 0 {
		return fmt.Errorf("%s over %s: %w", gold.Derive.Quote, rng, ErrNoDataAvailable)
	}
	rates := NewHistory(quotes)
	missing := 0
	for i := range t.Rows {
		row := &t.Rows[i]
		price, ok := usd.Get(row.Date)
		if !ok {
			continue // rows written after a failed migration are already in JPY
		}
		rate, ok := rates.ValueAsOf(row.Date)
		if !ok {
			delete(row.Cells, gold.Key)
			missing++
			continue
		}
		row.Cells[gold.Key] = Cell{Price: decimal.NewNullDecimal(gold.Round(price.Mul(rate)))}
	}
	log.Printf("migrate-gold rows=%d missing-rate=%d", len(t.Rows), missing)
	return nil
}

// rename moves the USD prices of gold into its current column unchanged.
func rename(t *Table, gold Instrument, usd *date.History[decimal.Decimal]) {
	for i := range t.Rows {
		row := &t.Rows[i]
		price, ok := usd.Get(row.Date)
		if !ok {
			delete(row.Cells, gold.Key)
			continue
		}
		c := row.Cell(gold.Key)
		c.Price = decimal.NewNullDecimal(price)
		row.Cells[gold.Key] = c
	}
}
