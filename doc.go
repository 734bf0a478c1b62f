// Package marketdata maintains a rolling table of daily closing prices for a
// small fixed set of instruments (equity indices, commodity futures, a
// currency cross and a bond yield), persisted as a CSV file that chart
// renderers consume as is.
//
// The core functionalities include:
//   - Retrieval: a Retriever returns the sparse daily closes of one symbol.
//   - Normalization: quotes of every instrument are reconciled onto a single
//     calendar day axis. Changes are computed on each instrument's trading
//     days, gaps are forward-filled with no movement, and a market_open flag
//     tells trading days apart.
//   - Merging: a run appends one day, overwrites a window, or repairs a single
//     instrument, and the whole table is atomically replaced on disk.
//   - Migration: older files storing gold in USD are converted to JPY using
//     the USD/JPY history.
//
// This package serves as the foundational logic for the `mkt` command-line
// tool.
package marketdata
