// Package ledger keeps the proxy's request counters and per-day usage totals.
//
// Each record lives behind its own Guarded value, so callers can only read a
// copy or mutate it through a closure. Both ledgers persist to JSON documents
// in the data directory and reload them on start.
package ledger
