// Package eodhd retrieves daily closes from EOD Historical Data (eodhd.com).
package eodhd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/etnz/marketdata"
	"github.com/etnz/marketdata/date"
	"github.com/etnz/marketdata/webcache"
	"github.com/shopspring/decimal"
)

// EnvAPIKey is the environment variable read when no API key is configured.
const EnvAPIKey = "EODHD_API_KEY"

const defaultBaseURL = "https://eodhd.com"

// Tickers maps the upstream symbols used by the marketdata instruments to
// EODHD tickers, in the "SYMBOL.EXCHANGECODE" format.
var Tickers = map[string]string{
	marketdata.SymbolNikkei: "N225.INDX",
	marketdata.SymbolSP500:  "GSPC.INDX",
	marketdata.SymbolGold:   "XAUUSD.FOREX",
	marketdata.SymbolUSDJPY: "USDJPY.FOREX",
	marketdata.SymbolWTI:    "CL.COMM",
	marketdata.SymbolUS10Y:  "US10Y.GBOND",
}

// Client is a marketdata.Retriever backed by the EODHD end of day API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option { return func(c *Client) { c.baseURL = baseURL } }

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// New returns an EODHD client. If apiKey is empty, the EODHD_API_KEY
// environment variable is used.
func New(apiKey string, options ...Option) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvAPIKey)
	}
	if apiKey == "" {
		return nil, errors.New("EODHD API key is not set, you can get one at https://eodhd.com/")
	}
	c := &Client{apiKey: apiKey, baseURL: defaultBaseURL, httpClient: webcache.NewClient(10*time.Second, false)}
	for _, option := range options {
		option(c)
	}
	return c, nil
}

var _ marketdata.Retriever = (*Client)(nil)

// Fetch returns the daily closes of symbol between from and to (included).
func (c *Client) Fetch(ctx context.Context, symbol string, from, to date.Date) ([]marketdata.Quote, error) {
	// https://eodhd.com/api/eod/NVD.F?api_token=demo&fmt=json&from=2024-02-01&to=2024-02-13
	// [
	//
	//	{
	//		"date": "2024-02-13",
	//		"open": 675.066,
	//		"high": 684.219,
	//		"low": 648.659,
	//		"close": 668.445,
	//		"adjusted_close": 67.705,
	//		"volume": 0
	//	  },
	//
	// bounds are included in the response.
	ticker, ok := Tickers[symbol]
	if !ok {
		ticker = symbol // assume it is already an EODHD ticker
	}
	q := url.Values{}
	q.Set("api_token", c.apiKey)
	q.Set("fmt", "json")
	q.Set("from", from.String())
	q.Set("to", to.String())
	addr := fmt.Sprintf("%s/api/eod/%s?%s", c.baseURL, url.PathEscape(ticker), q.Encode())

	type Info struct {
		Date  date.Date           `json:"date"`
		Close decimal.NullDecimal `json:"close"`
	}

	// that's the payload
	content := make([]Info, 0)
	if err := webcache.JSON(ctx, c.httpClient, addr, &content); err != nil {
		return nil, fmt.Errorf("eodhd %s: %w", ticker, err)
	}

	quotes := make([]marketdata.Quote, 0, len(content))
	for _, info := range content {
		if !info.Close.Valid {
			continue
		}
		quotes = append(quotes, marketdata.Quote{Date: info.Date, Close: info.Close.Decimal})
	}
	return quotes, nil
}
