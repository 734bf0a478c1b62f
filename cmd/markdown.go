package cmd

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/etnz/marketdata"
	"github.com/shopspring/decimal"
)

// printMarkdown renders md on the terminal, or prints it raw if rendering fails.
func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(0))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Print(md)
}

// formatPrice formats v in the instrument currency, or as a yield when it has none.
func formatPrice(in marketdata.Instrument, v decimal.Decimal) string {
	cur := money.GetCurrency(in.Currency)
	if cur == nil {
		return v.StringFixed(in.Precision) + "%"
	}
	f := money.NewFormatter(int(in.Precision), cur.Decimal, cur.Thousand, cur.Grapheme, cur.Template)
	return f.Format(v.Shift(in.Precision).IntPart())
}

// formatChange formats a signed change, "-" when null.
func formatChange(in marketdata.Instrument, v decimal.NullDecimal) string {
	if !v.Valid {
		return "-"
	}
	s := formatPrice(in, v.Decimal.Abs())
	if v.Decimal.IsNegative() {
		return "-" + s
	}
	return "+" + s
}

// formatPct formats a signed percentage, "-" when null.
func formatPct(v decimal.NullDecimal) string {
	if !v.Valid {
		return "-"
	}
	s := v.Decimal.StringFixed(marketdata.PctPrecision) + "%"
	if !v.Decimal.IsNegative() {
		s = "+" + s
	}
	return s
}

// markdownTable renders the last n rows of t, most recent first.
func markdownTable(t *marketdata.Table, n int, weekend bool) string {
	var b strings.Builder
	b.WriteString("| Date | Open |")
	for _, in := range t.Instruments {
		fmt.Fprintf(&b, " %s |", in.Name)
	}
	b.WriteString("\n|:---|:---:|")
	for range t.Instruments {
		b.WriteString("---:|")
	}
	b.WriteString("\n")

	rows := t.Rows
	if len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		open := r.MarketOpen
		if weekend {
			open = !r.Date.IsWeekend()
		}
		mark := ""
		if open {
			mark = "✓"
		}
		fmt.Fprintf(&b, "| %s | %s |", r.Date, mark)
		for _, in := range t.Instruments {
			c := r.Cell(in.Key)
			if !c.Price.Valid {
				b.WriteString(" - |")
				continue
			}
			fmt.Fprintf(&b, " %s %s |", formatPrice(in, c.Price.Decimal), formatPct(c.Pct))
		}
		b.WriteString("\n")
	}
	return b.String()
}
