package eodhd

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/etnz/marketdata"
	"github.com/etnz/marketdata/date"
)

func TestFetch(t *testing.T) {
	var gotPath, gotFrom, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFrom = r.URL.Query().Get("from")
		gotKey = r.URL.Query().Get("api_token")
		w.Write([]byte(`[
			{"date":"2025-01-03","open":5900.1,"close":5942.47,"volume":0},
			{"date":"2025-01-06","open":5950.0,"close":null,"volume":0},
			{"date":"2025-01-07","open":5980.2,"close":5909.03,"volume":0}
		]`))
	}))
	defer srv.Close()

	c, err := New("secret", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New() unexpected error = %v", err)
	}
	quotes, err := c.Fetch(t.Context(), marketdata.SymbolSP500, date.New(2025, 1, 3), date.New(2025, 1, 7))
	if err != nil {
		t.Fatalf("Fetch() unexpected error = %v", err)
	}

	if gotPath != "/api/eod/GSPC.INDX" {
		t.Errorf("Fetch() path = %q want %q", gotPath, "/api/eod/GSPC.INDX")
	}
	if gotFrom != "2025-01-03" || gotKey != "secret" {
		t.Errorf("Fetch() query from=%q api_token=%q", gotFrom, gotKey)
	}
	if len(quotes) != 2 {
		t.Fatalf("Fetch() returned %d quotes want 2", len(quotes))
	}
	if quotes[1].Date != date.New(2025, 1, 7) || quotes[1].Close.String() != "5909.03" {
		t.Errorf("Fetch()[1] = %v %v want 2025-01-07 5909.03", quotes[1].Date, quotes[1].Close)
	}
}

func TestNew_MissingKey(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	if _, err := New(""); err == nil {
		t.Error("New(\"\") expected an error without api key")
	}
	t.Setenv(EnvAPIKey, "from-env")
	c, err := New("")
	if err != nil {
		t.Fatalf("New(\"\") unexpected error = %v", err)
	}
	if c.apiKey != "from-env" {
		t.Errorf("New(\"\").apiKey = %q want %q", c.apiKey, "from-env")
	}
}

func TestFetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := New("bad", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if _, err := c.Fetch(t.Context(), "AAPL.US", date.New(2025, 1, 3), date.New(2025, 1, 7)); err == nil {
		t.Error("Fetch() expected an error on 401")
	}
}
