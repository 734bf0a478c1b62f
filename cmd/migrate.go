package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/marketdata"
	"github.com/google/subcommands"
)

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "upgrade the market data table to the current columns" }
func (*migrateCmd) Usage() string {
	return `mkt migrate

  Upgrades the market data table in place: converts the legacy gold_usd
  column into gold_jpy, adds market_open and any missing change columns.
  Fetches only the exchange rate needed for the conversion.
`
}

func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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
	report, err := p.Run(ctx, marketdata.Options{Mode: marketdata.ModeMigrate})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: migration failed: %v\n", err)
		return subcommands.ExitFailure
	}
	if report.Migration != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", report.Migration)
	}
	fmt.Printf("Migrated %q: %d rows\n", cfg.Store, report.After)
	return subcommands.ExitSuccess
}
