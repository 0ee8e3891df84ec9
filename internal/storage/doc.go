// Package storage persists scheduler snapshots so table state and run
// counters can be inspected after the fact.
//
// Drivers:
//   - "sqlite": SQLite database file (modernc.org/sqlite, pure Go)
//   - "file": append-only JSON Lines
package storage
