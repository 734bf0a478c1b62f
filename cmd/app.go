// Package cmd implements the CLI application to maintain the market data table.
package cmd

import (
	"flag"
	"fmt"

	"github.com/etnz/marketdata"
	"github.com/etnz/marketdata/config"
	"github.com/etnz/marketdata/eodhd"
	"github.com/etnz/marketdata/webcache"
	"github.com/etnz/marketdata/yahoo"
	"github.com/google/subcommands"
)

// Commands lists the subcommands of the mkt tool.
var Commands = []subcommands.Command{
	&updateCmd{},
	&summaryCmd{},
	&migrateCmd{},
	&topicCmd{},
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var configFile = flag.String("config", "", "Path to an optional YAML configuration file.")
var storeFile = flag.String("store", "", "Path to the market data CSV file. Overrides the configuration (default market_data.csv).")
var providerName = flag.String("provider", "", "Upstream provider, yahoo or eodhd. Overrides the configuration.")
var eodhdAPIKey = flag.String("eodhd-api-key", "", "EODHD API key to use for consuming EODHD.com API. This flag takes precedence over the "+eodhd.EnvAPIKey+" environment variable. You can get one at https://eodhd.com/")

// loadConfig reads the configuration and applies the global flags on top of it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}
	if *storeFile != "" {
		cfg.Store = *storeFile
	}
	if *providerName != "" {
		cfg.Provider = *providerName
	}
	if *eodhdAPIKey != "" {
		cfg.EODHDAPIKey = *eodhdAPIKey
	}
	return cfg, cfg.Validate()
}

// newRetriever returns the upstream provider selected by the configuration.
func newRetriever(cfg *config.Config) (marketdata.Retriever, error) {
	client := webcache.NewClient(cfg.Timeout, cfg.Cache)
	switch cfg.Provider {
	case "yahoo":
		return yahoo.New(yahoo.WithHTTPClient(client)), nil
	case "eodhd":
		return eodhd.New(cfg.EODHDAPIKey, eodhd.WithHTTPClient(client))
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

// newPipeline returns the pipeline over the configured store and provider.
func newPipeline(cfg *config.Config) (*marketdata.Pipeline, error) {
	r, err := newRetriever(cfg)
	if err != nil {
		return nil, err
	}
	return &marketdata.Pipeline{
		Retriever:   r,
		Instruments: marketdata.Instruments,
		Store:       cfg.Store,
		Lookback:    cfg.Lookback,
		Warmup:      cfg.Warmup,
		Concurrency: cfg.Concurrency,
	}, nil
}
