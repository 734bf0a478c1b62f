package marketdata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestPipeline(t *testing.T, instruments []Instrument) (*Pipeline, *MockRetriever) {
	t.Helper()
	r := NewMockRetriever(gomock.NewController(t))
	return &Pipeline{
		Retriever:   r,
		Instruments: instruments,
		Store:       filepath.Join(t.TempDir(), "market_data.csv"),
		Lookback:    7,
		Warmup:      10,
		Concurrency: 2,
	}, r
}

func assertUnlocked(t *testing.T, p *Pipeline) {
	t.Helper()
	_, err := os.Stat(p.Store + ".lock")
	assert.ErrorIs(t, err, os.ErrNotExist, "the lock is released")
}

func TestPipeline_Append(t *testing.T) {
	p, r := newTestPipeline(t, testInstruments)
	require.NoError(t, WriteStore(p.Store, persisted()))

	r.EXPECT().Fetch(gomock.Any(), "IDX", D("2024-12-31"), D("2025-01-07")).
		Return([]Quote{Q("2025-01-06", "102"), Q("2025-01-07", "101")}, nil)
	r.EXPECT().Fetch(gomock.Any(), "FX", D("2024-12-31"), D("2025-01-07")).
		Return(nil, errors.New("HTTP 500"))

	report, err := p.Run(context.Background(), Options{Mode: ModeAppend, On: D("2025-01-07")})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Before)
	assert.Equal(t, 5, report.After)
	assert.Contains(t, report.Failed, FX.Key)
	assert.NotContains(t, report.Failed, IDX.Key)

	stored, err := LoadStore(p.Store, testInstruments)
	require.NoError(t, err)
	last, _ := stored.Last()
	assert.Equal(t, D("2025-01-07"), last.Date)
	assert.True(t, last.MarketOpen)
	assertCell(t, C("101", "-1", "-0.98"), last.Cell(IDX.Key))
	_, ok := last.Cells[FX.Key]
	assert.False(t, ok, "failed instruments have a null cell")
	assertUnlocked(t, p)
}

func TestPipeline_AppendEmptyStore(t *testing.T) {
	p, r := newTestPipeline(t, []Instrument{Gold})

	r.EXPECT().Fetch(gomock.Any(), SymbolGold, gomock.Any(), gomock.Any()).
		Return([]Quote{Q("2025-01-06", "2640.5")}, nil)
	r.EXPECT().Fetch(gomock.Any(), SymbolUSDJPY, gomock.Any(), gomock.Any()).
		Return([]Quote{Q("2025-01-03", "157"), Q("2025-01-06", "157.5")}, nil)

	report, err := p.Run(context.Background(), Options{Mode: ModeAppend, On: D("2025-01-06")})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Before)
	require.Equal(t, 1, report.After)
	assertCell(t, C("415878.75", "0", "0"), report.Table.Rows[0].Cell(Gold.Key))
	_, err = os.Stat(p.Store)
	assert.NoError(t, err)
}

func TestPipeline_NothingFetched(t *testing.T) {
	p, r := newTestPipeline(t, testInstruments)

	r.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("offline")).Times(2)

	_, err := p.Run(context.Background(), Options{Mode: ModeAppend, On: D("2025-01-06")})
	require.Error(t, err)

	_, err = os.Stat(p.Store)
	assert.ErrorIs(t, err, os.ErrNotExist, "nothing is written")
	assertUnlocked(t, p)
}

func TestPipeline_Overwrite(t *testing.T) {
	p, r := newTestPipeline(t, testInstruments)
	require.NoError(t, WriteStore(p.Store, persisted()))

	r.EXPECT().Fetch(gomock.Any(), "IDX", D("2024-12-27"), D("2025-01-07")).
		Return([]Quote{Q("2025-01-03", "100"), Q("2025-01-06", "104"), Q("2025-01-07", "104")}, nil)
	r.EXPECT().Fetch(gomock.Any(), "FX", D("2024-12-27"), D("2025-01-07")).
		Return([]Quote{Q("2025-01-03", "150"), Q("2025-01-07", "151.5")}, nil)

	report, err := p.Run(context.Background(), Options{Mode: ModeOverwrite, Days: 2, On: D("2025-01-07")})
	require.NoError(t, err)

	assert.Empty(t, report.Failed)
	require.Equal(t, 5, report.After)
	rows := report.Table.Rows
	assertCell(t, C("100", "0", "0"), rows[2].Cell(IDX.Key), "rows before the window are kept")
	assertCell(t, C("104", "4", "4"), rows[3].Cell(IDX.Key))
	assertCell(t, C("151.5", "1.5", "1"), rows[4].Cell(FX.Key))
}

func TestPipeline_OverwriteTwice(t *testing.T) {
	p, r := newTestPipeline(t, testInstruments)
	require.NoError(t, WriteStore(p.Store, persisted()))

	r.EXPECT().Fetch(gomock.Any(), "IDX", gomock.Any(), gomock.Any()).
		Return([]Quote{Q("2025-01-02", "98"), Q("2025-01-03", "100"), Q("2025-01-06", "104"), Q("2025-01-07", "103")}, nil).Times(2)
	r.EXPECT().Fetch(gomock.Any(), "FX", gomock.Any(), gomock.Any()).
		Return([]Quote{Q("2025-01-03", "150"), Q("2025-01-07", "151.5")}, nil).Times(2)
	opts := Options{Mode: ModeOverwrite, Days: 4, On: D("2025-01-07")}

	_, err := p.Run(context.Background(), opts)
	require.NoError(t, err)
	first, err := os.ReadFile(p.Store)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), opts)
	require.NoError(t, err)
	second, err := os.ReadFile(p.Store)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second), "a second overwrite with the same data changes nothing")
}

func TestPipeline_Repair(t *testing.T) {
	p, r := newTestPipeline(t, testInstruments)
	require.NoError(t, WriteStore(p.Store, persisted()))

	// Only the repaired instrument is fetched.
	r.EXPECT().Fetch(gomock.Any(), "IDX", D("2024-12-24"), D("2025-01-06")).
		Return([]Quote{Q("2025-01-03", "200"), Q("2025-01-06", "204")}, nil)

	report, err := p.Run(context.Background(), Options{Mode: ModeRepair, Repair: "idx"})
	require.NoError(t, err)

	assertCell(t, C("204", "4", "2"), report.Table.Rows[3].Cell(IDX.Key))
	assertCell(t, persisted().Rows[3].Cell(FX.Key), report.Table.Rows[3].Cell(FX.Key))

	_, err = p.Run(context.Background(), Options{Mode: ModeRepair, Repair: "unknown"})
	assert.Error(t, err)
}

func TestPipeline_Locked(t *testing.T) {
	p, _ := newTestPipeline(t, testInstruments)
	lock, err := LockStore(p.Store)
	require.NoError(t, err)
	defer lock.Unlock()

	_, err = p.Run(context.Background(), Options{Mode: ModeAppend, On: D("2025-01-06")})
	assert.Error(t, err, "a concurrent run must fail")
}

func TestPipeline_MalformedStore(t *testing.T) {
	p, _ := newTestPipeline(t, testInstruments)
	garbage := []byte("idx,fx\n1,2\n")
	require.NoError(t, os.WriteFile(p.Store, garbage, 0644))

	_, err := p.Run(context.Background(), Options{Mode: ModeAppend, On: D("2025-01-06")})
	assert.ErrorIs(t, err, ErrMalformedPersistedStore)

	got, err := os.ReadFile(p.Store)
	require.NoError(t, err)
	assert.Equal(t, garbage, got, "a malformed store is left untouched")
	assertUnlocked(t, p)
}

func TestPipeline_Migrate(t *testing.T) {
	p, r := newTestPipeline(t, Instruments)
	require.NoError(t, os.WriteFile(p.Store, []byte(legacyStore), 0644))

	r.EXPECT().Fetch(gomock.Any(), SymbolUSDJPY, gomock.Any(), gomock.Any()).
		Return([]Quote{Q("2025-01-03", "157"), Q("2025-01-06", "157.5")}, nil)

	report, err := p.Run(context.Background(), Options{Mode: ModeMigrate})
	require.NoError(t, err)
	assert.NoError(t, report.Migration)

	stored, err := LoadStore(p.Store, Instruments)
	require.NoError(t, err)
	assert.False(t, stored.HasColumn(DeprecatedGoldColumn))
	assert.True(t, stored.HasColumn(Gold.Column))
	assert.True(t, stored.HasColumn(ColumnMarketOpen))
	assertCell(t, C("415878.75", "-171.25", "-0.04"), stored.Rows[2].Cell(Gold.Key))
}
