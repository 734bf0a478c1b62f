package marketdata

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Instrument describes one tracked series and how it is persisted.
type Instrument struct {
	Key       string // key used for the change and percent columns
	Column    string // price column name
	Symbol    string // upstream symbol, empty for derived instruments
	Precision int32  // decimals kept for price and change
	Currency  string // ISO code of the price, empty for yields
	Name      string // human readable title

	// Derive, when set, builds the instrument from two upstream symbols:
	// price = Base close × Quote close as of the same date.
	Derive *Derivation
}

// Derivation computes a series as the product of two upstream series.
type Derivation struct {
	Base  string // e.g. gold in USD/oz
	Quote string // e.g. JPY per USD
}

// ChangeColumn returns the column name of the day-over-day change.
func (in Instrument) ChangeColumn() string { return in.Key + "_change" }

// PctColumn returns the column name of the day-over-day percent change.
func (in Instrument) PctColumn() string { return in.Key + "_pct" }

// Symbols returns every upstream symbol required to build this instrument.
func (in Instrument) Symbols() []string {
	if in.Derive != nil {
		return []string{in.Derive.Base, in.Derive.Quote}
	}
	return []string{in.Symbol}
}

// Round rounds a price or a change to the instrument precision.
func (in Instrument) Round(v decimal.Decimal) decimal.Decimal { return v.Round(in.Precision) }

func (in Instrument) String() string { return in.Key }

// PctPrecision is the number of decimals kept for every percent change.
const PctPrecision = 2

// Upstream symbols.
const (
	SymbolNikkei = "^N225"
	SymbolSP500  = "^GSPC"
	SymbolGold   = "GC=F"
	SymbolUSDJPY = "JPY=X"
	SymbolWTI    = "CL=F"
	SymbolUS10Y  = "^TNX"
)

// DeprecatedGoldColumn is the USD gold price column written by older versions.
const DeprecatedGoldColumn = "gold_usd"

// Gold is the gold price in JPY, derived from the USD future and the USD/JPY rate.
var Gold = Instrument{
	Key:       "gold",
	Column:    "gold_jpy",
	Precision: 2,
	Currency:  "JPY",
	Name:      "Gold (JPY/oz)",
	Derive:    &Derivation{Base: SymbolGold, Quote: SymbolUSDJPY},
}

// Instruments is the fixed set of series maintained in the store, in column order.
var Instruments = []Instrument{
	{Key: "nikkei_225", Column: "nikkei_225", Symbol: SymbolNikkei, Precision: 2, Currency: "JPY", Name: "Nikkei 225"},
	{Key: "sp500", Column: "sp500", Symbol: SymbolSP500, Precision: 2, Currency: "USD", Name: "S&P 500"},
	Gold,
	{Key: "usdjpy", Column: "usdjpy", Symbol: SymbolUSDJPY, Precision: 2, Currency: "JPY", Name: "USD/JPY"},
	{Key: "wti", Column: "wti", Symbol: SymbolWTI, Precision: 2, Currency: "USD", Name: "WTI Crude Oil"},
	{Key: "us10y", Column: "us10y", Symbol: SymbolUS10Y, Precision: 4, Name: "US 10-Year Treasury Yield"},
}

// Lookup returns the instrument with the given key or price column.
func Lookup(instruments []Instrument, name string) (Instrument, error) {
	for _, in := range instruments {
		if in.Key == name || in.Column == name {
			return in, nil
		}
	}
	return Instrument{}, fmt.Errorf("unknown instrument %q", name)
}
