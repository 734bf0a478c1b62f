package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/etnz/marketdata"
	"github.com/etnz/marketdata/date"
	"github.com/google/subcommands"
)

type updateCmd struct {
	days      int
	overwrite bool
	repair    string
	date      string
}

func (*updateCmd) Name() string     { return "update" }
func (*updateCmd) Synopsis() string { return "fetch the latest closes and update the market data table" }
func (*updateCmd) Usage() string {
	return `mkt update [-days N] [-overwrite] [-repair <instrument>] [-d <date>]

Fetches daily closes from the upstream provider and merges them into the
market data table.

By default, a single row is appended for the run date, with changes computed
against the last persisted row.

With -days N greater than 1, or with -overwrite, the last N calendar days are
fetched again, recomputed and replace the same days in the table.

With -repair, a single instrument (e.g. us10y) is fetched again over the whole
table range and only its columns are rewritten.
`
}

func (c *updateCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.days, "days", 1, "number of calendar days to refresh, ending on the run date")
	f.BoolVar(&c.overwrite, "overwrite", false, "replace the window instead of appending a single day")
	f.StringVar(&c.repair, "repair", "", "instrument key or column to fetch again over the whole table")
	f.StringVar(&c.date, "d", "", "run date (defaults to today)")
}

// options converts the flags into pipeline options.
func (c *updateCmd) options() (marketdata.Options, error) {
	opts := marketdata.Options{Mode: marketdata.ModeAppend, Days: c.days}
	if c.date != "" {
		on, err := date.Parse(c.date)
		if err != nil {
			return opts, err
		}
		opts.On = on
	}
	if c.days < 1 {
		return opts, fmt.Errorf("-days must be at least 1, got %d", c.days)
	}
	switch {
	case c.repair != "" && (c.overwrite || c.days > 1):
		return opts, fmt.Errorf("-repair cannot be combined with -days or -overwrite")
	case c.repair != "":
		opts.Mode, opts.Repair = marketdata.ModeRepair, c.repair
	case c.overwrite || c.days > 1:
		opts.Mode = marketdata.ModeOverwrite
	}
	return opts, nil
}

func (c *updateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "Error: no arguments expected")
		return subcommands.ExitUsageError
	}
	opts, err := c.options()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		return subcommands.ExitUsageError
	}
	p, err := newPipeline(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	report, err := p.Run(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s failed: %v\n", opts.Mode, err)
		return subcommands.ExitFailure
	}
	printReport(os.Stdout, os.Stderr, report)
	return subcommands.ExitSuccess
}

// printReport prints what a run did and the latest values to w, and warnings to warn.
func printReport(w, warn io.Writer, r *marketdata.Report) {
	if r.Migration != nil {
		fmt.Fprintf(warn, "Warning: %v\n", r.Migration)
	}
	for _, key := range slices.Sorted(maps.Keys(r.Failed)) {
		fmt.Fprintf(warn, "Warning: %s not updated: %v\n", key, r.Failed[key])
	}

	fmt.Fprintf(w, "Updated: %s (%s, %d → %d rows)\n", r.Window.To, r.Mode, r.Before, r.After)
	last, ok := r.Table.Last()
	if !ok {
		return
	}
	for _, in := range r.Table.Instruments {
		c := last.Cell(in.Key)
		if !c.Price.Valid {
			continue
		}
		fmt.Fprintf(w, "%s: %s %s (%s)\n", in.Name, formatPrice(in, c.Price.Decimal), formatChange(in, c.Change), formatPct(c.Pct))
	}
}
