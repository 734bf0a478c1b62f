package marketdata

import (
	"context"
	"fmt"

	"github.com/etnz/marketdata/date"
	"github.com/shopspring/decimal"
)

// Instruments used by tests, independent from the production set.
var (
	IDX = Instrument{Key: "idx", Column: "idx", Symbol: "IDX", Precision: 2, Currency: "USD", Name: "Index"}
	FX  = Instrument{Key: "fx", Column: "fx", Symbol: "FX", Precision: 2, Currency: "JPY", Name: "Rate"}

	testInstruments = []Instrument{IDX, FX}
)

// D is a helper for test to create a date from a const.
func D(s string) date.Date { return date.MustParse(s) }

// dec is a helper for test to create a decimal from a const.
func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Q is a helper for test to create a quote from consts.
func Q(day, close string) Quote { return Quote{Date: D(day), Close: dec(close)} }

// C is a helper for test to create a fully valued cell from consts.
func C(price, change, pct string) Cell { return valued(dec(price), dec(change), dec(pct)) }

// fmtCell prints a cell for test failure messages.
func fmtCell(c Cell) string {
	f := func(v decimal.NullDecimal) string {
		if !v.Valid {
			return "null"
		}
		return v.Decimal.String()
	}
	return fmt.Sprintf("%s/%s/%s", f(c.Price), f(c.Change), f(c.Pct))
}

// fakeRetriever serves canned quotes by symbol, filtered by the requested range.
type fakeRetriever struct {
	quotes map[string][]Quote
	errs   map[string]error
	calls  []string
}

func (f *fakeRetriever) Fetch(_ context.Context, symbol string, from, to date.Date) ([]Quote, error) {
	f.calls = append(f.calls, symbol)
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	rng := date.NewRange(from, to)
	var result []Quote
	for _, q := range f.quotes[symbol] {
		if rng.Contains(q.Date) {
			result = append(result, q)
		}
	}
	return result, nil
}
