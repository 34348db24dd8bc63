// Package observers implements events.Sink consumers for scrape runs: console
// logging, Prometheus counters, Postgres persistence, description archiving,
// notification publishing and run bookkeeping. Feed them through an events.Hub.
package observers
