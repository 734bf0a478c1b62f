package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"slices"
	"sync"

	"github.com/etnz/marketdata/date"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Mode selects how a run merges fresh data into the store.
type Mode int

const (
	ModeAppend    Mode = iota // add a single row for the run date
	ModeOverwrite             // recompute and replace the last Days calendar days
	ModeRepair                // refetch a single instrument over the whole store range
	ModeMigrate               // only upgrade the store schema
)

func (m Mode) String() string {
	switch m {
	case ModeAppend:
		return "append"
	case ModeOverwrite:
		return "overwrite"
	case ModeRepair:
		return "repair"
	case ModeMigrate:
		return "migrate"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Options of a single run.
type Options struct {
	Mode   Mode
	Days   int       // window size in overwrite mode
	Repair string    // instrument key or column in repair mode
	On     date.Date // run date, today if zero
}

// Report describes what a run did.
type Report struct {
	Mode          Mode
	Window        date.Range
	Before, After int              // row counts
	Failed        map[string]error // per instrument key
	Migration     error            // non fatal migration failure
	Table         *Table           // the written table
}

// Pipeline maintains a persisted table of daily closes.
type Pipeline struct {
	Retriever   Retriever
	Instruments []Instrument
	Store       string // path of the CSV file
	Lookback    int    // calendar days searched for the latest close in append mode
	Warmup      int    // calendar days fetched before a window to seed changes
	Concurrency int    // parallel upstream requests, 0 means one per symbol
}

// Run executes one pass: load, migrate, fetch, normalize, merge and write.
//
// Per instrument fetch failures are reported in Report.Failed and do not abort
// the run, unless no instrument could be fetched at all. A malformed store or
// a write failure aborts the run, and the previous file is left intact.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	on := opts.On
	if on.IsZero() {
		on = date.Today()
	}
	report := &Report{Mode: opts.Mode, Failed: make(map[string]error)}

	lock, err := LockStore(p.Store)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Printf("unlock-failed err=%q", err)
		}
	}()

	t, err := LoadStore(p.Store, p.Instruments)
	if errors.Is(err, ErrMissingPersistedStore) && opts.Mode != ModeMigrate {
		log.Printf("missing-store name=%q starting empty", p.Store)
		t, err = NewTable(p.Instruments), nil
	}
	if err != nil {
		return nil, err
	}
	report.Before = t.Len()

	t, err = Migrate(ctx, t, p.Retriever, p.Warmup)
	if err != nil {
		log.Printf("migrate-warning err=%q", err)
		report.Migration = err
	}

	switch opts.Mode {
	case ModeAppend:
		t, err = p.append(ctx, t, on, report)
	case ModeOverwrite:
		t, err = p.overwrite(ctx, t, date.LastDays(on, opts.Days), report)
	case ModeRepair:
		t, err = p.repair(ctx, t, opts.Repair, report)
	case ModeMigrate:
	default:
		err = fmt.Errorf("unsupported mode %v", opts.Mode)
	}
	if err != nil {
		return nil, err
	}

	if err := WriteStore(p.Store, t); err != nil {
		return nil, err
	}
	report.After = t.Len()
	report.Table = t
	return report, nil
}

// append fetches the latest close of every instrument and appends a row on day.
func (p *Pipeline) append(ctx context.Context, t *Table, day date.Date, report *Report) (*Table, error) {
	report.Window = date.NewRange(day, day)
	quotes := p.fetchAll(ctx, p.Instruments, date.LastDays(day, p.Lookback+1), report)
	latest := make(map[string]Quote)
	for _, in := range p.Instruments {
		if _, failed := report.Failed[in.Key]; failed {
			continue
		}
		q, ok := LatestOf(quotes[in.Key], day)
		if !ok {
			report.Failed[in.Key] = fmt.Errorf("%s in the %d days before %s: %w", in.Key, p.Lookback, day, ErrNoDataAvailable)
			continue
		}
		latest[in.Key] = q
	}
	if len(latest) == 0 {
		return nil, fmt.Errorf("no instrument could be fetched: %w", errors.Join(slices.Collect(maps.Values(report.Failed))...))
	}
	return Append(t, latest, day)
}

// overwrite recomputes window from upstream and replaces it in t.
func (p *Pipeline) overwrite(ctx context.Context, t *Table, window date.Range, report *Report) (*Table, error) {
	report.Window = window
	quotes := p.fetchAll(ctx, p.Instruments, window.Extend(p.Warmup), report)
	if len(report.Failed) == len(p.Instruments) {
		return nil, fmt.Errorf("no instrument could be fetched: %w", errors.Join(slices.Collect(maps.Values(report.Failed))...))
	}

	// Persisted prices before the window seed instruments with no warmup quote.
	baseline := make(map[string]decimal.Decimal)
	for _, r := range t.Rows {
		if !r.Date.Before(window.From) {
			break
		}
		for key, c := range r.Cells {
			if c.Price.Valid {
				baseline[key] = c.Price.Decimal
			}
		}
	}
	fresh := Normalize(p.Instruments, quotes, window, baseline)
	return Overwrite(t, fresh, window, slices.Sorted(maps.Keys(report.Failed))...), nil
}

// repair refetches a single instrument over the range of t.
func (p *Pipeline) repair(ctx context.Context, t *Table, name string, report *Report) (*Table, error) {
	in, err := Lookup(p.Instruments, name)
	if err != nil {
		return nil, err
	}
	rng, ok := t.Range()
	if !ok {
		return nil, fmt.Errorf("cannot repair %s: the store is empty", in.Key)
	}
	report.Window = rng
	quotes := p.fetchAll(ctx, []Instrument{in}, rng.Extend(p.Warmup), report)
	if err, failed := report.Failed[in.Key]; failed {
		return nil, fmt.Errorf("cannot repair %s: %w", in.Key, err)
	}
	return Repair(t, in, quotes[in.Key])
}

// fetchAll fetches every symbol required by instruments over rng, concurrently,
// and returns the quotes by instrument key. Failed instruments are recorded
// into report and absent from the result.
func (p *Pipeline) fetchAll(ctx context.Context, instruments []Instrument, rng date.Range, report *Report) map[string][]Quote {
	symbols := make(map[string]bool)
	for _, in := range instruments {
		for _, s := range in.Symbols() {
			symbols[s] = true
		}
	}

	var mu sync.Mutex
	bySymbol := make(map[string][]Quote)
	errs := make(map[string]error)

	var g errgroup.Group
	if p.Concurrency > 0 {
		g.SetLimit(p.Concurrency)
	}
	for _, symbol := range slices.Sorted(maps.Keys(symbols)) {
		g.Go(func() error {
			quotes, err := p.Retriever.Fetch(ctx, symbol, rng.From, rng.To)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("fetch-failed symbol=%q err=%q", symbol, err)
				errs[symbol] = err
				return nil // one symbol failing must not cancel the others
			}
			log.Printf("fetch symbol=%q from=%q to=%q quotes=%d", symbol, rng.From, rng.To, len(quotes))
			bySymbol[symbol] = quotes
			return nil
		})
	}
	_ = g.Wait() // goroutines never fail, errors are per symbol

	result := make(map[string][]Quote)
	for _, in := range instruments {
		var err error
		for _, s := range in.Symbols() {
			if e, ok := errs[s]; ok {
				err = errors.Join(err, fmt.Errorf("%s: %w", s, e))
			}
		}
		if err != nil {
			report.Failed[in.Key] = err
			continue
		}
		quotes := Derive(in, bySymbol)
		if len(quotes) == 0 {
			report.Failed[in.Key] = fmt.Errorf("%s over %s: %w", in.Key, rng, ErrNoDataAvailable)
			continue
		}
		result[in.Key] = quotes
	}
	return result
}
