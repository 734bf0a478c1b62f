package yahoo

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/etnz/marketdata/date"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Closes at 15:00 Tokyo time from 2025-01-05 to 2025-01-08, the 2025-01-07 close is null.
const chartPayload = `{"chart":{"result":[{
	"meta":{"currency":"JPY","symbol":"^N225","exchangeTimezoneName":"Asia/Tokyo","gmtoffset":32400},
	"timestamp":[1736060400,1736143200,1736229600,1736316000],
	"indicators":{"quote":[{"close":[39000.5,39307.05078125,null,40083.30078125]}]}
}],"error":null}}`

func TestParseChart(t *testing.T) {
	quotes, err := parseChart([]byte(chartPayload), date.New(2025, 1, 6), date.New(2025, 1, 8))
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	assert.Equal(t, date.New(2025, 1, 6), quotes[0].Date)
	assert.Equal(t, "39307.05078125", quotes[0].Close.String())
	assert.Equal(t, date.New(2025, 1, 8), quotes[1].Date)
}

func TestParseChart_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		payload string
		wantErr bool
		wantLen int
	}{
		{"not json", `<html>`, true, 0},
		{"api error", `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`, true, 0},
		{"no result", `{"chart":{"result":[],"error":null}}`, false, 0},
		{"length mismatch", `{"chart":{"result":[{"meta":{},"timestamp":[1736143200],"indicators":{"quote":[{"close":[]}]}}],"error":null}}`, true, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			quotes, err := parseChart([]byte(tc.payload), date.New(2025, 1, 1), date.New(2025, 1, 31))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, quotes, tc.wantLen)
		})
	}
}

func TestFetch(t *testing.T) {
	var gotPath, gotInterval string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotInterval = r.URL.Query().Get("interval")
		w.Write([]byte(chartPayload))
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	quotes, err := c.Fetch(t.Context(), "^N225", date.New(2025, 1, 6), date.New(2025, 1, 8))
	require.NoError(t, err)
	assert.Len(t, quotes, 2)
	assert.Equal(t, "/v8/finance/chart/%5EN225", gotPath)
	assert.Equal(t, "1d", gotInterval)
}

func TestFetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := c.Fetch(t.Context(), "GC=F", date.New(2025, 1, 6), date.New(2025, 1, 8))
	assert.ErrorContains(t, err, "429")
}
