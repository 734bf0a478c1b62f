package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/marketdata"
	"github.com/google/subcommands"
)

// summaryCmd holds the flags for the 'summary' subcommand.
type summaryCmd struct {
	n int
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "display the latest rows of the market data table" }
func (*summaryCmd) Usage() string {
	return `mkt summary [-n <rows>]

  Displays the most recent rows of the market data table, with the daily
  percent change of every instrument.
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.n, "n", 14, "number of rows to display")
}

func (c *summaryCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.n < 1 {
		fmt.Fprintf(os.Stderr, "Error: -n must be at least 1, got %d\n", c.n)
		return subcommands.ExitUsageError
	}
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		return subcommands.ExitUsageError
	}
	t, err := marketdata.LoadStore(cfg.Store, marketdata.Instruments)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading %q: %v\n", cfg.Store, err)
		return subcommands.ExitFailure
	}
	// Stores written before market_open existed only know about weekends.
	weekend := !t.HasColumn(marketdata.ColumnMarketOpen)

	printMarkdown(markdownTable(t, c.n, weekend))
	return subcommands.ExitSuccess
}
