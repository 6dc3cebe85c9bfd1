// Package store persists device and room snapshots in SQLite.
//
// The bridge saves every successful discovery result here so a restart
// can rebuild its entities immediately, before the first cloud
// round-trip completes. Snapshots are replaced wholesale on each save;
// the store always mirrors the last discovery exactly.
//
// Payloads are stored as raw JSON, keyed by ID. There is no migration
// machinery: the schema is two tables created idempotently at open.
package store
