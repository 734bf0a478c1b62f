// Package yahoo retrieves daily closes from the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/etnz/marketdata"
	"github.com/etnz/marketdata/date"
	"github.com/etnz/marketdata/webcache"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Client is a marketdata.Retriever backed by the Yahoo Finance chart API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// New returns a Yahoo Finance client.
func New(options ...Option) *Client {
	c := &Client{baseURL: defaultBaseURL, httpClient: webcache.NewClient(10*time.Second, false)}
	for _, option := range options {
		option(c)
	}
	return c
}

var _ marketdata.Retriever = (*Client)(nil)

// Fetch returns the daily closes of symbol between from and to (included).
//
// Dates are calendar days in the exchange timezone reported by the API.
func (c *Client) Fetch(ctx context.Context, symbol string, from, to date.Date) ([]marketdata.Quote, error) {
	// https://query1.finance.yahoo.com/v8/finance/chart/%5EN225?period1=1735689600&period2=1736294400&interval=1d
	// {"chart":{"result":[{
	//     "meta":{"currency":"JPY","symbol":"^N225","exchangeTimezoneName":"Asia/Tokyo","gmtoffset":32400, ...},
	//     "timestamp":[1736211600, ...],
	//     "indicators":{"quote":[{"close":[39895.87890625, ...], ...}]}
	// }],"error":null}}
	// Padding one day before from absorbs the timezone offset, results are filtered below.
	q := url.Values{}
	q.Set("period1", fmt.Sprint(from.Add(-1).Unix()))
	q.Set("period2", fmt.Sprint(to.Add(2).Unix()))
	q.Set("interval", "1d")
	q.Set("events", "history")
	addr := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), q.Encode())

	body, err := webcache.Get(ctx, c.httpClient, addr)
	if err != nil {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, err)
	}
	quotes, err := parseChart(body, from, to)
	if err != nil {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, err)
	}
	return quotes, nil
}

// parseChart reads a chart API payload, keeping quotes in [from, to].
func parseChart(body []byte, from, to date.Date) ([]marketdata.Quote, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid json payload")
	}
	if e := gjson.GetBytes(body, "chart.error"); e.Exists() && e.Type != gjson.Null {
		return nil, fmt.Errorf("api error %s: %s", e.Get("code").String(), e.Get("description").String())
	}
	result := gjson.GetBytes(body, "chart.result.0")
	if !result.Exists() {
		return nil, nil
	}

	loc := location(result.Get("meta"))
	window := date.NewRange(from, to)
	timestamps := result.Get("timestamp").Array()
	closes := result.Get("indicators.quote.0.close").Array()
	if len(closes) != len(timestamps) {
		return nil, fmt.Errorf("got %d closes for %d timestamps", len(closes), len(timestamps))
	}

	quotes := make([]marketdata.Quote, 0, len(timestamps))
	for i, ts := range timestamps {
		// The API returns null closes for days with no trade.
		if closes[i].Type != gjson.Number {
			continue
		}
		on := date.Of(time.Unix(ts.Int(), 0).In(loc))
		if !window.Contains(on) {
			continue
		}
		v, err := decimal.NewFromString(closes[i].Raw)
		if err != nil {
			return nil, fmt.Errorf("invalid close %q: %w", closes[i].Raw, err)
		}
		quotes = append(quotes, marketdata.Quote{Date: on, Close: v})
	}
	return quotes, nil
}

// location returns the exchange timezone described by the chart meta.
func location(meta gjson.Result) *time.Location {
	if name := meta.Get("exchangeTimezoneName").String(); name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.FixedZone(meta.Get("timezone").String(), int(meta.Get("gmtoffset").Int()))
}
