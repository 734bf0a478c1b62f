package marketdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/etnz/marketdata/date"
	"github.com/shopspring/decimal"
)

// Errors of the pipeline that callers are expected to branch on.
var (
	// ErrNoDataAvailable reports that an upstream returned no quote for the requested range.
	ErrNoDataAvailable = errors.New("no data available")
	// ErrMissingPersistedStore reports that the persisted table does not exist yet.
	ErrMissingPersistedStore = errors.New("missing persisted store")
	// ErrSchemaMigrationFailed reports that a deprecated column could not be derived forward.
	ErrSchemaMigrationFailed = errors.New("schema migration failed")
	// ErrMalformedPersistedStore reports a persisted table that cannot be read.
	ErrMalformedPersistedStore = errors.New("malformed persisted store")
)

// Quote is the closing value of one symbol on one calendar day.
type Quote struct {
	Date  date.Date
	Close decimal.Decimal
}

// Retriever fetches daily closing quotes for a symbol.
//
// Only trading days are returned, in any order. An empty result is not an error.
type Retriever interface {
	Fetch(ctx context.Context, symbol string, from, to date.Date) ([]Quote, error)
}

// NewHistory builds a chronological history from quotes, later duplicates win.
func NewHistory(quotes []Quote) *date.History[decimal.Decimal] {
	h := new(date.History[decimal.Decimal])
	for _, q := range quotes {
		h.Append(q.Date, q.Close)
	}
	return h
}

// Latest returns the most recent quote of symbol within [on-lookback, on].
// It returns ErrNoDataAvailable if the window holds no trading day.
func Latest(ctx context.Context, r Retriever, symbol string, on date.Date, lookback int) (Quote, error) {
	quotes, err := r.Fetch(ctx, symbol, on.Add(-lookback), on)
	if err != nil {
		return Quote{}, err
	}
	latest, ok := LatestOf(quotes, on)
	if !ok {
		return Quote{}, fmt.Errorf("%s in the %d days before %s: %w", symbol, lookback, on, ErrNoDataAvailable)
	}
	return latest, nil
}

// LatestOf returns the most recent quote dated on or before on.
func LatestOf(quotes []Quote, on date.Date) (latest Quote, ok bool) {
	for _, q := range quotes {
		if q.Date.After(on) {
			continue
		}
		if !ok || q.Date.After(latest.Date) {
			latest, ok = q, true
		}
	}
	return latest, ok
}

// Derive returns the quotes of in from the quotes of its upstream symbols.
//
// For a plain instrument this is the symbol's quotes. For a derived one, a
// quote exists on every base trading day that has a quote value as of that day.
func Derive(in Instrument, bySymbol map[string][]Quote) []Quote {
	if in.Derive == nil {
		return bySymbol[in.Symbol]
	}
	return Product(bySymbol[in.Derive.Base], bySymbol[in.Derive.Quote])
}

// Product multiplies each base quote by the latest rate on or before its date.
func Product(base, rate []Quote) []Quote {
	rates := NewHistory(rate)
	result := make([]Quote, 0, len(base))
	for on, value := range NewHistory(base).Values() {
		r, ok := rates.ValueAsOf(on)
		if !ok {
			continue
		}
		result = append(result, Quote{Date: on, Close: value.Mul(r)})
	}
	return result
}
